package services

import "errors"

var (
	ErrCartNotFound  = errors.New("cart not found")
	ErrCartOwnership = errors.New("cart does not belong to user")
	ErrEmptyCart     = errors.New("cart is empty")
	ErrOrderNotFound = errors.New("order not found")
)
