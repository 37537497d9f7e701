package dtos

import (
	"time"

	"github.com/google/uuid"
)

type OrderHistoryItem struct {
	ProductID   uuid.UUID `json:"productId"`
	ProductName string    `json:"productName"`
	Quantity    int       `json:"quantity"`
	Price       int64     `json:"price"`
}

// OrderSummary is one entry of GET /order/history.
type OrderSummary struct {
	OrderID       uuid.UUID          `json:"orderId"`
	TransactionID uuid.UUID          `json:"transactionId"`
	Amount        int64              `json:"amount"`
	CreatedAt     time.Time          `json:"createdAt"`
	Items         []OrderHistoryItem `json:"items"`
}
