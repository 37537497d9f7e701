package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"storefront-backend/models"

	"github.com/redis/go-redis/v9"
)

const (
	catalogKey        = "catalog:products"
	DefaultCatalogTTL = 10 * time.Minute
)

// CatalogCache caches the product listing. A nil client turns every call
// into a miss or a no-op, so callers never need to check for it.
type CatalogCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCatalogCache(client *redis.Client, ttl time.Duration) *CatalogCache {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &CatalogCache{client: client, ttl: ttl}
}

func (c *CatalogCache) Enabled() bool {
	return c != nil && c.client != nil
}

// GetProducts returns the cached catalog and whether it was a hit.
func (c *CatalogCache) GetProducts(ctx context.Context) ([]models.Product, bool) {
	if !c.Enabled() {
		return nil, false
	}

	data, err := c.client.Get(ctx, catalogKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("catalog cache read failed", "error", err)
		}
		return nil, false
	}

	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		slog.Warn("catalog cache entry corrupt, dropping", "error", err)
		c.Invalidate(ctx)
		return nil, false
	}
	return products, true
}

func (c *CatalogCache) SetProducts(ctx context.Context, products []models.Product) {
	if !c.Enabled() {
		return
	}

	data, err := json.Marshal(products)
	if err != nil {
		slog.Warn("catalog cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, catalogKey, data, c.ttl).Err(); err != nil {
		slog.Warn("catalog cache write failed", "error", err)
	}
}

func (c *CatalogCache) Invalidate(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Del(ctx, catalogKey).Err(); err != nil {
		slog.Warn("catalog cache invalidate failed", "error", err)
	}
}
