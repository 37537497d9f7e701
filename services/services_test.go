package services

import (
	"context"
	"errors"
	"testing"

	"storefront-backend/dtos"
	"storefront-backend/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Cart{},
		&models.CartLineItem{},
		&models.Order{},
		&models.OrderLineItem{},
	); err != nil {
		t.Fatal(err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Name: "Test User", Email: email, Password: "hash"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, price int64) models.Product {
	t.Helper()
	p := models.Product{SKU: sku, Name: "Product " + sku, Price: price, ImageURL: "/" + sku + ".png"}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return p
}

func qtyOf(items []dtos.CartItem, sku string) int {
	for _, it := range items {
		if it.SKU == sku {
			return it.Qty
		}
	}
	return 0
}

// ==================== CartService ====================

func TestGetCartWithoutCartIsEmpty(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "nocart@test.com")

	items, err := NewCartService(db).GetCart(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", items)
	}
}

func TestUpdateCartAddIncrements(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "add@test.com")
	seedProduct(t, db, "item0001", 1000)
	svc := NewCartService(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Add: []string{"item0001"}}); err != nil {
			t.Fatalf("UpdateCart failed: %v", err)
		}
	}

	items, _ := svc.GetCart(ctx, user.ID)
	if len(items) != 1 {
		t.Fatalf("expected 1 line item, got %d", len(items))
	}
	if items[0].Qty != 3 {
		t.Errorf("expected qty 3, got %d", items[0].Qty)
	}

	var carts int64
	db.Model(&models.Cart{}).Where("user_id = ?", user.ID).Count(&carts)
	if carts != 1 {
		t.Errorf("expected exactly one cart, got %d", carts)
	}
}

func TestUpdateCartUnknownSKUDoesNotAbort(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "unknown@test.com")
	seedProduct(t, db, "item0001", 1000)

	view, err := NewCartService(db).UpdateCart(context.Background(), user.ID,
		dtos.CartPatchRequest{Add: []string{"nope9999", "item0001"}})
	if err != nil {
		t.Fatalf("UpdateCart failed: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].SKU != "item0001" {
		t.Fatalf("expected only item0001, got %#v", view.Items)
	}
}

func TestUpdateCartRemoveThenAdd(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "readd@test.com")
	seedProduct(t, db, "item0001", 1000)
	svc := NewCartService(db)
	ctx := context.Background()

	svc.UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Add: []string{"item0001", "item0001"}})
	svc.UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Remove: []string{"item0001"}})
	view, err := svc.UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Add: []string{"item0001"}})
	if err != nil {
		t.Fatalf("UpdateCart failed: %v", err)
	}
	if qtyOf(view.Items, "item0001") != 1 {
		t.Errorf("expected qty 1 after re-add, got %d", qtyOf(view.Items, "item0001"))
	}
}

func TestUpdateCartQuantity(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "qty@test.com")
	seedProduct(t, db, "item0001", 1000)
	seedProduct(t, db, "item0002", 500)
	svc := NewCartService(db)
	ctx := context.Background()

	svc.UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Add: []string{"item0001", "item0002"}})
	view, err := svc.UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Update: []dtos.QuantityUpdate{
		{SKU: "item0001", Quantity: 5},
		{SKU: "item0002", Quantity: 0},
		{SKU: "nope9999", Quantity: 2},
	}})
	if err != nil {
		t.Fatalf("UpdateCart failed: %v", err)
	}
	if len(view.Items) != 1 {
		t.Fatalf("expected quantity 0 to remove the row, got %#v", view.Items)
	}
	if qtyOf(view.Items, "item0001") != 5 {
		t.Errorf("expected qty 5, got %d", qtyOf(view.Items, "item0001"))
	}
}

func TestUpdateCartQuantityOnAbsentRowIsNoop(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "absent@test.com")
	seedProduct(t, db, "item0001", 1000)

	view, err := NewCartService(db).UpdateCart(context.Background(), user.ID,
		dtos.CartPatchRequest{Update: []dtos.QuantityUpdate{{SKU: "item0001", Quantity: 4}}})
	if err != nil {
		t.Fatalf("UpdateCart failed: %v", err)
	}
	if len(view.Items) != 0 {
		t.Errorf("expected no rows, got %#v", view.Items)
	}
}

func TestCartPriceIsFrozenAtAddTime(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "frozen@test.com")
	p := seedProduct(t, db, "item0001", 1000)
	svc := NewCartService(db)
	ctx := context.Background()

	svc.UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Add: []string{"item0001"}})
	db.Model(&p).Update("price", 1500)
	view, _ := svc.UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Add: []string{"item0001"}})

	if view.Items[0].Price != 1000 {
		t.Errorf("expected snapshot price 1000, got %d", view.Items[0].Price)
	}
}

func TestReplaceCartDiffs(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "replace@test.com")
	seedProduct(t, db, "item0001", 1000)
	seedProduct(t, db, "item0002", 2000)
	seedProduct(t, db, "item0003", 3000)
	svc := NewCartService(db)
	ctx := context.Background()

	svc.UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Add: []string{"item0001", "item0002"}})

	view, err := svc.ReplaceCart(ctx, user.ID, []dtos.CartItem{
		{SKU: "item0002", Qty: 4},
		{SKU: "item0003", Qty: 1, Price: 1}, // client price is ignored
		{SKU: "nope9999", Qty: 2},
	}, 0)
	if err != nil {
		t.Fatalf("ReplaceCart failed: %v", err)
	}
	if len(view.Items) != 2 {
		t.Fatalf("expected 2 items, got %#v", view.Items)
	}
	if qtyOf(view.Items, "item0001") != 0 {
		t.Error("item0001 should have been removed")
	}
	if qtyOf(view.Items, "item0002") != 4 {
		t.Errorf("expected item0002 qty 4, got %d", qtyOf(view.Items, "item0002"))
	}
	for _, it := range view.Items {
		if it.SKU == "item0003" && it.Price != 3000 {
			t.Errorf("expected server price 3000, got %d", it.Price)
		}
	}
}

func TestReplaceCartIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "idem@test.com")
	seedProduct(t, db, "item0001", 1000)
	seedProduct(t, db, "item0002", 2000)
	svc := NewCartService(db)
	ctx := context.Background()

	target := []dtos.CartItem{{SKU: "item0001", Qty: 2}, {SKU: "item0002", Qty: 1}}
	first, err := svc.ReplaceCart(ctx, user.ID, target, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.ReplaceCart(ctx, user.ID, target, 0)
	if err != nil {
		t.Fatal(err)
	}

	if len(first.Items) != len(second.Items) {
		t.Fatalf("item count changed: %d vs %d", len(first.Items), len(second.Items))
	}
	for _, it := range first.Items {
		if qtyOf(second.Items, it.SKU) != it.Qty {
			t.Errorf("qty for %s changed on repeat", it.SKU)
		}
	}
	var rows int64
	db.Model(&models.CartLineItem{}).Count(&rows)
	if rows != 2 {
		t.Errorf("expected 2 rows, got %d", rows)
	}
}

func TestReplaceCartDuplicateSKULastWins(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "dup@test.com")
	seedProduct(t, db, "item0001", 1000)
	seedProduct(t, db, "item0002", 2000)
	svc := NewCartService(db)

	view, err := svc.ReplaceCart(context.Background(), user.ID, []dtos.CartItem{
		{SKU: "item0001", Qty: 2},
		{SKU: "item0001", Qty: 5},
		{SKU: "item0002", Qty: 3},
		{SKU: "item0002", Qty: 0},
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if qtyOf(view.Items, "item0001") != 5 {
		t.Errorf("expected last occurrence qty 5, got %d", qtyOf(view.Items, "item0001"))
	}
	if qtyOf(view.Items, "item0002") != 0 {
		t.Error("qty 0 as last occurrence should leave item0002 out")
	}
}

func TestReplaceCartSKUReappearsAfterZero(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "reappear@test.com")
	seedProduct(t, db, "item0001", 1000)
	svc := NewCartService(db)

	view, err := svc.ReplaceCart(context.Background(), user.ID, []dtos.CartItem{
		{SKU: "item0001", Qty: 1},
		{SKU: "item0001", Qty: 0},
		{SKU: "item0001", Qty: 2},
	}, 0)
	if err != nil {
		t.Fatalf("ReplaceCart failed: %v", err)
	}
	if len(view.Items) != 1 || qtyOf(view.Items, "item0001") != 2 {
		t.Errorf("expected a single item0001 line with qty 2, got %#v", view.Items)
	}

	var count int64
	db.Model(&models.CartLineItem{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 stored line, got %d", count)
	}
}

func TestReplaceCartStaleSeqIsIgnored(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "seq@test.com")
	seedProduct(t, db, "item0001", 1000)
	svc := NewCartService(db)
	ctx := context.Background()

	view, err := svc.ReplaceCart(ctx, user.ID, []dtos.CartItem{{SKU: "item0001", Qty: 3}}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if view.Seq != 5 || view.Stale {
		t.Fatalf("expected seq 5 applied, got seq=%d stale=%v", view.Seq, view.Stale)
	}

	view, err = svc.ReplaceCart(ctx, user.ID, []dtos.CartItem{{SKU: "item0001", Qty: 1}}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !view.Stale {
		t.Error("expected stale flag for older seq")
	}
	if qtyOf(view.Items, "item0001") != 3 {
		t.Errorf("stale replace must not apply, got qty %d", qtyOf(view.Items, "item0001"))
	}

	view, _ = svc.ReplaceCart(ctx, user.ID, []dtos.CartItem{{SKU: "item0001", Qty: 1}}, 6)
	if view.Stale || qtyOf(view.Items, "item0001") != 1 || view.Seq != 6 {
		t.Errorf("expected newer seq to apply, got %#v", view)
	}
}

// ==================== OrderService ====================

func TestSubmitOrderWithoutCart(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "none@test.com")

	_, err := NewOrderService(db).SubmitOrder(context.Background(), user.ID)
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}

func TestSubmitOrderEmptyCart(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "empty@test.com")
	db.Create(&models.Cart{UserID: user.ID})

	_, err := NewOrderService(db).SubmitOrder(context.Background(), user.ID)
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestSubmitOrderPersistsAndClearsCart(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "submit@test.com")
	a := seedProduct(t, db, "item0001", 1000)
	seedProduct(t, db, "item0002", 2500)
	carts := NewCartService(db)
	ctx := context.Background()

	carts.UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Add: []string{"item0001", "item0001", "item0002"}})
	// Catalog price changes after add do not affect the order.
	db.Model(&a).Update("price", 9999)

	order, err := NewOrderService(db).SubmitOrder(ctx, user.ID)
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if order.Amount != 4500 {
		t.Errorf("expected amount 4500, got %d", order.Amount)
	}
	if order.TransactionID == order.ID {
		t.Error("transaction id must differ from order id")
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 order items, got %d", len(order.Items))
	}

	var stored models.Order
	if err := db.Preload("Items").First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if stored.Total() != stored.Amount {
		t.Errorf("amount %d does not match line items %d", stored.Amount, stored.Total())
	}

	items, _ := carts.GetCart(ctx, user.ID)
	if len(items) != 0 {
		t.Errorf("expected empty cart after submit, got %d items", len(items))
	}
	var cartCount int64
	db.Model(&models.Cart{}).Where("user_id = ?", user.ID).Count(&cartCount)
	if cartCount != 1 {
		t.Error("cart row should survive submission")
	}

	if _, err := NewOrderService(db).SubmitOrder(ctx, user.ID); !errors.Is(err, ErrEmptyCart) {
		t.Errorf("expected ErrEmptyCart on resubmit, got %v", err)
	}
}

func TestSubmitOrderRollsBackOnFailure(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "rollback@test.com")
	seedProduct(t, db, "item0001", 1000)
	ctx := context.Background()

	NewCartService(db).UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Add: []string{"item0001", "item0001"}})

	// Fail after the order row has been inserted.
	errLines := errors.New("order lines unavailable")
	if err := db.Callback().Create().Before("gorm:create").Register("test:fail_order_lines", func(tx *gorm.DB) {
		if tx.Statement.Table == "order_line_item" {
			tx.AddError(errLines)
		}
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := NewOrderService(db).SubmitOrder(ctx, user.ID); !errors.Is(err, errLines) {
		t.Fatalf("expected the line insert failure, got %v", err)
	}

	var orders int64
	db.Model(&models.Order{}).Count(&orders)
	if orders != 0 {
		t.Errorf("expected no order rows after rollback, got %d", orders)
	}
	items, err := NewCartService(db).GetCart(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if qtyOf(items, "item0001") != 2 {
		t.Errorf("cart should be untouched after rollback, got %#v", items)
	}
}

func TestSubmitOrderExcludesOrphans(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "orphan@test.com")
	seedProduct(t, db, "item0001", 1000)
	gone := seedProduct(t, db, "item0002", 2000)
	ctx := context.Background()

	NewCartService(db).UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Add: []string{"item0001", "item0002"}})
	db.Exec("PRAGMA foreign_keys = OFF")
	if err := db.Exec("DELETE FROM products WHERE id = ?", gone.ID).Error; err != nil {
		t.Fatal(err)
	}

	order, err := NewOrderService(db).SubmitOrder(ctx, user.ID)
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if order.Amount != 1000 || len(order.Items) != 1 {
		t.Errorf("expected only item0001 in order, got amount=%d items=%d", order.Amount, len(order.Items))
	}
}

func TestOrderHistoryNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "history@test.com")
	other := seedUser(t, db, "other@test.com")
	seedProduct(t, db, "item0001", 1000)
	carts := NewCartService(db)
	orders := NewOrderService(db)
	ctx := context.Background()

	carts.UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Add: []string{"item0001"}})
	first, _ := orders.SubmitOrder(ctx, user.ID)
	carts.UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Add: []string{"item0001", "item0001"}})
	second, _ := orders.SubmitOrder(ctx, user.ID)
	carts.UpdateCart(ctx, other.ID, dtos.CartPatchRequest{Add: []string{"item0001"}})
	orders.SubmitOrder(ctx, other.ID)

	history, err := orders.OrderHistory(ctx, user.ID)
	if err != nil {
		t.Fatalf("OrderHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(history))
	}
	if history[0].OrderID != second.ID || history[1].OrderID != first.ID {
		t.Error("expected newest order first")
	}
	if history[0].Amount != 2000 || history[0].Items[0].Quantity != 2 {
		t.Errorf("unexpected summary: %#v", history[0])
	}
}

func TestGetOrderScopedToUser(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "scoped@test.com")
	other := seedUser(t, db, "intruder@test.com")
	seedProduct(t, db, "item0001", 1000)
	ctx := context.Background()

	NewCartService(db).UpdateCart(ctx, user.ID, dtos.CartPatchRequest{Add: []string{"item0001"}})
	order, _ := NewOrderService(db).SubmitOrder(ctx, user.ID)

	if _, err := NewOrderService(db).GetOrder(ctx, other.ID, order.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound for another user, got %v", err)
	}
	got, err := NewOrderService(db).GetOrder(ctx, user.ID, order.ID)
	if err != nil || len(got.Items) != 1 {
		t.Errorf("expected order with 1 item, got %v %v", got, err)
	}
	if _, err := NewOrderService(db).GetOrder(ctx, user.ID, uuid.New()); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestPriceLineItems(t *testing.T) {
	p := models.Product{ID: uuid.New(), SKU: "item0001", Name: "A"}
	lines, total := PriceLineItems([]models.CartLineItem{
		{ProductID: p.ID, Product: p, Quantity: 2, Price: 1000},
		{ProductID: uuid.New(), Quantity: 1, Price: 500}, // orphan
		{ProductID: p.ID, Product: p, Quantity: 0, Price: 700},
	})
	if total != 2000 || len(lines) != 1 {
		t.Fatalf("expected one line totalling 2000, got %d lines, %d", len(lines), total)
	}
	if lines[0].ProductName != "A" || lines[0].ProductSKU != "item0001" {
		t.Errorf("snapshot not captured: %#v", lines[0])
	}
}
