package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order is the immutable record of a completed checkout. TransactionID is
// the receipt reference shown to the customer and is distinct from ID.
type Order struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"userId"`
	CartID        uuid.UUID       `gorm:"type:uuid;not null" json:"cartId"`
	TransactionID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"transactionId"`
	Amount        int64           `gorm:"not null" json:"amount"`
	Items         []OrderLineItem `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// OrderLineItem snapshots a product at submission time.
type OrderLineItem struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID     uuid.UUID `gorm:"type:uuid;not null;index" json:"orderId"`
	ProductID   uuid.UUID `gorm:"type:uuid;not null;index" json:"productId"`
	ProductName string    `json:"productName"` // Snapshot of product name at time of order
	ProductSKU  string    `json:"productSku"`  // Snapshot of product SKU at time of order
	Quantity    int       `gorm:"not null" json:"quantity"`
	Price       int64     `gorm:"not null" json:"price"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (OrderLineItem) TableName() string {
	return "order_line_item"
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.TransactionID == uuid.Nil {
		o.TransactionID = uuid.New()
	}
	return nil
}

func (i *OrderLineItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Total sums price × quantity over the order's line items.
func (o Order) Total() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.Price * int64(item.Quantity)
	}
	return total
}
