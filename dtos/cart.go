package dtos

import "github.com/google/uuid"

// CartItem is a cart line item as the storefront sees it.
type CartItem struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	ImageURL string `json:"imageURL"`
	Qty      int    `json:"qty"`
}

// CartView is the authoritative cart returned after every cart write.
type CartView struct {
	CartID uuid.UUID  `json:"cartId"`
	UserID uuid.UUID  `json:"userId"`
	Items  []CartItem `json:"items"`
	Seq    int64      `json:"seq"`
	// Stale is set when a wholesale replace was older than the last applied one.
	Stale bool `json:"stale,omitempty"`
}

type QuantityUpdate struct {
	SKU      string `json:"sku" binding:"required"`
	Quantity int    `json:"quantity"`
}

// CartPatchRequest is the body of PATCH /cart.
type CartPatchRequest struct {
	Add    []string         `json:"add"`
	Remove []string         `json:"remove"`
	Update []QuantityUpdate `json:"update" binding:"dive"`
}

// CartReplaceRequest is the body of PUT /cart. Name, price and image are
// accepted for compatibility with the client payload but never trusted.
type CartReplaceRequest struct {
	Cart []CartItem `json:"cart" binding:"dive"`
	Seq  int64      `json:"seq"`
}
