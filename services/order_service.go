package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storefront-backend/dtos"
	"storefront-backend/models"
	"storefront-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderService struct {
	DB *gorm.DB
}

func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{DB: db}
}

// PriceLineItems snapshots the includable cart lines into order lines and
// sums their persisted prices. Lines whose product is gone or whose
// quantity is not positive are left out.
func PriceLineItems(items []models.CartLineItem) ([]models.OrderLineItem, int64) {
	var lines []models.OrderLineItem
	var total int64
	for _, item := range items {
		if item.Product.ID == uuid.Nil || item.Quantity < 1 {
			continue
		}
		lines = append(lines, models.OrderLineItem{
			ProductID:   item.ProductID,
			ProductName: item.Product.Name,
			ProductSKU:  item.Product.SKU,
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
		total += item.LineTotal()
	}
	return lines, total
}

// SubmitOrder turns the user's cart into an order and empties the cart in
// a single transaction.
func (s *OrderService) SubmitOrder(ctx context.Context, userID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cart models.Cart
		if err := tx.Where("user_id = ?", userID).Order("created_at").First(&cart).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCartNotFound
			}
			return fmt.Errorf("failed to find cart: %w", err)
		}

		// Lock the cart row so concurrent submissions serialize.
		var owned models.Cart
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", cart.ID, userID).First(&owned).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCartOwnership
			}
			return fmt.Errorf("failed to lock cart: %w", err)
		}

		var items []models.CartLineItem
		if err := tx.Preload("Product").Where("cart_id = ?", owned.ID).Order("created_at").Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load cart items: %w", err)
		}

		lines, total := PriceLineItems(items)
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		order = models.Order{
			ID:            uuid.New(),
			TransactionID: uuid.New(),
			UserID:        userID,
			CartID:        owned.ID,
			Amount:        total,
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range lines {
			lines[i].OrderID = order.ID
		}
		if err := tx.Create(&lines).Error; err != nil {
			return fmt.Errorf("failed to create order items: %w", err)
		}

		if err := tx.Where("cart_id = ?", owned.ID).Delete(&models.CartLineItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		order.Items = lines
		if order.Total() != order.Amount {
			return fmt.Errorf("order amount %d does not match its lines %d", order.Amount, order.Total())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendReceipt(ctx, &order)
	return &order, nil
}

func (s *OrderService) sendReceipt(ctx context.Context, order *models.Order) {
	if !utils.GetEmailConfig().Configured() {
		return
	}

	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", order.UserID).Error; err != nil {
		slog.Warn("receipt skipped, user lookup failed", "user_id", order.UserID, "error", err)
		return
	}

	receipt := make([]utils.ReceiptLine, 0, len(order.Items))
	for _, item := range order.Items {
		receipt = append(receipt, utils.ReceiptLine{Name: item.ProductName, Quantity: item.Quantity, Price: item.Price})
	}
	utils.SendOrderReceipt(user.Email, user.Name, order.TransactionID.String(), order.Amount, receipt)
}

// OrderHistory lists the user's orders, newest first.
func (s *OrderService) OrderHistory(ctx context.Context, userID uuid.UUID) ([]dtos.OrderSummary, error) {
	var orders []models.Order
	err := s.DB.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}

	history := make([]dtos.OrderSummary, 0, len(orders))
	for _, o := range orders {
		history = append(history, Summarize(o))
	}
	return history, nil
}

// GetOrder returns one of the user's orders.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.DB.WithContext(ctx).Preload("Items").
		Where("id = ? AND user_id = ?", orderID, userID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// Summarize maps an order with its items to the history wire shape.
func Summarize(o models.Order) dtos.OrderSummary {
	items := make([]dtos.OrderHistoryItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, dtos.OrderHistoryItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
	}
	return dtos.OrderSummary{
		OrderID:       o.ID,
		TransactionID: o.TransactionID,
		Amount:        o.Amount,
		CreatedAt:     o.CreatedAt,
		Items:         items,
	}
}
