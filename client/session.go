package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"storefront-backend/dtos"
	"storefront-backend/models"

	"golang.org/x/sync/errgroup"
)

// Session wires a CartStore to the backend: it loads the catalog and the
// saved cart, then pushes every local change in the background.
type Session struct {
	api    *APIClient
	store  *CartStore
	syncer *CartSyncer
	log    *slog.Logger

	ready       atomic.Bool
	unsubscribe func()

	mu      sync.RWMutex
	catalog []models.Product

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(api *APIClient, store *CartStore, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		api:    api,
		store:  store,
		syncer: NewCartSyncer(api, log, api.httpClient.Timeout, time.Now().UnixNano()),
		log:    log,
	}
	s.unsubscribe = store.Subscribe(s.onChange)
	return s
}

// onChange queues a push for local edits once the initial fetch is done.
// Replace comes from the server and Submit follows a server-side clear, so
// neither is pushed back.
func (s *Session) onChange(action Action, next State) {
	if !s.ready.Load() {
		return
	}
	switch action.Type {
	case ActionReplace, ActionSubmit:
		return
	}
	s.syncer.Enqueue(next.Cart)
}

// Start fetches the catalog and the saved cart concurrently, loads the cart
// into the store and starts the sync worker.
func (s *Session) Start(ctx context.Context) error {
	var (
		products []models.Product
		cart     []LineItem
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.api.Products(gctx)
		if err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		cart, err = s.api.GetCart(gctx)
		if err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.catalog = products
	s.mu.Unlock()

	if err := s.store.Dispatch(Action{Type: ActionReplace, Items: cart}); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.syncer.Run(runCtx)
	}()

	s.ready.Store(true)
	s.log.Info("cart session started", "products", len(products), "cart_items", len(cart))
	return nil
}

// Close stops the sync worker. Pending pushes are dropped; call Flush first
// to wait for them.
func (s *Session) Close() {
	s.ready.Store(false)
	s.unsubscribe()
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Session) Store() *CartStore { return s.store }

func (s *Session) Catalog() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Product, len(s.catalog))
	copy(out, s.catalog)
	return out
}

func (s *Session) AddToCart(p models.Product) error {
	return s.store.Dispatch(Action{Type: ActionAdd, Item: &LineItem{
		SKU:      p.SKU,
		Name:     p.Name,
		Price:    p.Price,
		ImageURL: p.ImageURL,
	}})
}

func (s *Session) RemoveFromCart(sku string) error {
	return s.store.Dispatch(Action{Type: ActionRemove, Item: &LineItem{SKU: sku}})
}

// SetQuantity updates the server line first, then the local cart.
func (s *Session) SetQuantity(ctx context.Context, sku string, qty int) error {
	if !s.store.Contains(sku) {
		return fmt.Errorf("%s %q: %w", ActionQuantity, sku, ErrItemMustExist)
	}
	if _, err := s.api.PatchCart(ctx, dtos.CartPatchRequest{
		Update: []dtos.QuantityUpdate{{SKU: sku, Quantity: qty}},
	}); err != nil {
		s.log.Error("failed to update item quantity", "sku", sku, "qty", qty, "error", err)
		return err
	}
	return s.store.Dispatch(Action{Type: ActionQuantity, Item: &LineItem{SKU: sku, Qty: qty}})
}

// Flush waits for queued cart pushes to finish.
func (s *Session) Flush(ctx context.Context) error {
	return s.syncer.Flush(ctx)
}

// PlaceOrder lets queued pushes land, submits the order and clears the
// local cart.
func (s *Session) PlaceOrder(ctx context.Context) (models.Order, error) {
	if err := s.syncer.Flush(ctx); err != nil {
		return models.Order{}, fmt.Errorf("cart sync did not finish: %w", err)
	}

	order, err := s.api.SubmitOrder(ctx)
	if err != nil {
		return order, err
	}

	if err := s.store.Dispatch(Action{Type: ActionSubmit}); err != nil {
		return order, err
	}
	s.log.Info("order placed", "order_id", order.ID, "transaction_id", order.TransactionID, "amount", order.Amount)
	return order, nil
}

func (s *Session) OrderHistory(ctx context.Context) ([]dtos.OrderSummary, error) {
	return s.api.OrderHistory(ctx)
}

// Syncer exposes the background pusher for inspection.
func (s *Session) Syncer() *CartSyncer { return s.syncer }
