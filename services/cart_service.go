package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storefront-backend/dtos"
	"storefront-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartService reconciles client cart state with the stored cart.
type CartService struct {
	DB *gorm.DB
}

func NewCartService(db *gorm.DB) *CartService {
	return &CartService{DB: db}
}

// GetCart returns the user's line items. A user without a cart gets an
// empty slice.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) ([]dtos.CartItem, error) {
	var cart models.Cart
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []dtos.CartItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}
	return cartItems(s.DB.WithContext(ctx), cart.ID)
}

// UpdateCart applies an incremental patch: adds, then removes, then
// quantity updates. Unknown SKUs are skipped.
func (s *CartService) UpdateCart(ctx context.Context, userID uuid.UUID, patch dtos.CartPatchRequest) (dtos.CartView, error) {
	var view dtos.CartView
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := findOrCreateCart(tx, userID)
		if err != nil {
			return err
		}

		for _, sku := range patch.Add {
			if err := addOne(tx, cart.ID, sku); err != nil {
				return err
			}
		}

		if len(patch.Remove) > 0 {
			var productIDs []uuid.UUID
			if err := tx.Model(&models.Product{}).Where("sku IN ?", patch.Remove).Pluck("id", &productIDs).Error; err != nil {
				return fmt.Errorf("failed to look up products: %w", err)
			}
			if len(productIDs) > 0 {
				if err := tx.Where("cart_id = ? AND product_id IN ?", cart.ID, productIDs).Delete(&models.CartLineItem{}).Error; err != nil {
					return fmt.Errorf("failed to remove items: %w", err)
				}
			}
		}

		for _, u := range patch.Update {
			product, ok, err := productBySKU(tx, u.SKU)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			q := tx.Where("cart_id = ? AND product_id = ?", cart.ID, product.ID)
			if u.Quantity < 1 {
				err = q.Delete(&models.CartLineItem{}).Error
			} else {
				err = q.Model(&models.CartLineItem{}).Update("quantity", u.Quantity).Error
			}
			if err != nil {
				return fmt.Errorf("failed to update quantity: %w", err)
			}
		}

		if err := tx.Model(cart).Update("updated_at", time.Now()).Error; err != nil {
			return fmt.Errorf("failed to touch cart: %w", err)
		}

		view, err = cartView(tx, cart)
		return err
	})
	return view, err
}

// ReplaceCart makes the stored cart match items. A seq at or below the last
// applied one is stale: nothing changes and the current cart comes back
// flagged Stale.
func (s *CartService) ReplaceCart(ctx context.Context, userID uuid.UUID, items []dtos.CartItem, seq int64) (dtos.CartView, error) {
	var view dtos.CartView
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := findOrCreateCart(tx, userID)
		if err != nil {
			return err
		}

		if seq > 0 && seq <= cart.SyncSeq {
			slog.Debug("stale cart replace ignored", "user_id", userID, "seq", seq, "applied_seq", cart.SyncSeq)
			view, err = cartView(tx, cart)
			view.Stale = true
			return err
		}

		// Last occurrence of a SKU wins; qty < 1 means absent.
		target := make(map[string]int)
		seen := make(map[string]bool)
		var order []string
		for _, it := range items {
			if !seen[it.SKU] {
				seen[it.SKU] = true
				order = append(order, it.SKU)
			}
			if it.Qty < 1 {
				delete(target, it.SKU)
				continue
			}
			target[it.SKU] = it.Qty
		}

		products := make(map[string]models.Product)
		if len(order) > 0 {
			var found []models.Product
			if err := tx.Where("sku IN ?", order).Find(&found).Error; err != nil {
				return fmt.Errorf("failed to look up products: %w", err)
			}
			for _, p := range found {
				products[p.SKU] = p
			}
		}

		var existing []models.CartLineItem
		if err := tx.Where("cart_id = ?", cart.ID).Find(&existing).Error; err != nil {
			return fmt.Errorf("failed to load cart items: %w", err)
		}
		byProduct := make(map[uuid.UUID]models.CartLineItem, len(existing))
		for _, item := range existing {
			byProduct[item.ProductID] = item
		}

		keep := make(map[uuid.UUID]bool)
		for _, sku := range order {
			qty, wanted := target[sku]
			if !wanted {
				continue
			}
			product, known := products[sku]
			if !known {
				slog.Debug("unknown sku skipped", "user_id", userID, "sku", sku)
				continue
			}
			keep[product.ID] = true

			if item, ok := byProduct[product.ID]; ok {
				if item.Quantity != qty {
					if err := tx.Model(&item).Update("quantity", qty).Error; err != nil {
						return fmt.Errorf("failed to update quantity: %w", err)
					}
				}
				continue
			}
			line := models.CartLineItem{CartID: cart.ID, ProductID: product.ID, Quantity: qty, Price: product.Price}
			if err := tx.Create(&line).Error; err != nil {
				return fmt.Errorf("failed to add item: %w", err)
			}
		}

		var stale []uuid.UUID
		for _, item := range existing {
			if !keep[item.ProductID] {
				stale = append(stale, item.ID)
			}
		}
		if len(stale) > 0 {
			if err := tx.Where("id IN ?", stale).Delete(&models.CartLineItem{}).Error; err != nil {
				return fmt.Errorf("failed to remove items: %w", err)
			}
		}

		updates := map[string]interface{}{"updated_at": time.Now()}
		if seq > 0 {
			updates["sync_seq"] = seq
		}
		if err := tx.Model(cart).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update cart: %w", err)
		}
		if seq > 0 {
			cart.SyncSeq = seq
		}

		view, err = cartView(tx, cart)
		return err
	})
	return view, err
}

func findOrCreateCart(tx *gorm.DB, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := tx.Where("user_id = ?", userID).Order("created_at").First(&cart).Error
	if err == nil {
		return &cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}

	cart = models.Cart{UserID: userID}
	if err := tx.Create(&cart).Error; err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return &cart, nil
}

func productBySKU(tx *gorm.DB, sku string) (models.Product, bool, error) {
	var product models.Product
	err := tx.Where("sku = ?", sku).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return product, false, nil
	}
	if err != nil {
		return product, false, fmt.Errorf("failed to look up product %q: %w", sku, err)
	}
	return product, true, nil
}

// addOne increments the line for sku or inserts it at quantity 1 with the
// product's current price.
func addOne(tx *gorm.DB, cartID uuid.UUID, sku string) error {
	product, ok, err := productBySKU(tx, sku)
	if err != nil {
		return err
	}
	if !ok {
		slog.Debug("unknown sku skipped", "cart_id", cartID, "sku", sku)
		return nil
	}

	var item models.CartLineItem
	err = tx.Where("cart_id = ? AND product_id = ?", cartID, product.ID).First(&item).Error
	if err == nil {
		if err := tx.Model(&item).Update("quantity", gorm.Expr("quantity + ?", 1)).Error; err != nil {
			return fmt.Errorf("failed to increment quantity: %w", err)
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to find cart item: %w", err)
	}

	item = models.CartLineItem{CartID: cartID, ProductID: product.ID, Quantity: 1, Price: product.Price}
	if err := tx.Create(&item).Error; err != nil {
		return fmt.Errorf("failed to add item: %w", err)
	}
	return nil
}

// cartItems lists line items in insertion order. Rows whose product no
// longer exists are left out.
func cartItems(db *gorm.DB, cartID uuid.UUID) ([]dtos.CartItem, error) {
	var lines []models.CartLineItem
	if err := db.Preload("Product").Where("cart_id = ?", cartID).Order("created_at").Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}

	items := make([]dtos.CartItem, 0, len(lines))
	for _, l := range lines {
		if l.Product.ID == uuid.Nil {
			continue
		}
		items = append(items, dtos.CartItem{
			SKU:      l.Product.SKU,
			Name:     l.Product.Name,
			Price:    l.Price,
			ImageURL: l.Product.ImageURL,
			Qty:      l.Quantity,
		})
	}
	return items, nil
}

func cartView(tx *gorm.DB, cart *models.Cart) (dtos.CartView, error) {
	items, err := cartItems(tx, cart.ID)
	if err != nil {
		return dtos.CartView{}, err
	}
	return dtos.CartView{CartID: cart.ID, UserID: cart.UserID, Items: items, Seq: cart.SyncSeq}, nil
}
