package routes

import (
	"context"
	"net/http"
	"time"

	"storefront-backend/cache"
	"storefront-backend/handlers"
	"storefront-backend/middleware"
	"storefront-backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Limits applies to the rate limited route groups.
type Limits struct {
	AuthPerMinute int
	CartPerMinute int
}

var DefaultLimits = Limits{AuthPerMinute: 10, CartPerMinute: 120}

// SetupRoutes registers every route. ctx bounds the rate limiter sweepers.
func SetupRoutes(ctx context.Context, r *gin.Engine, db *gorm.DB, catalog *cache.CatalogCache, limits Limits) {
	authHandler := &handlers.AuthHandler{DB: db}
	productHandler := &handlers.ProductHandler{DB: db, Cache: catalog}
	cartHandler := &handlers.CartHandler{Carts: services.NewCartService(db)}
	orderHandler := &handlers.OrderHandler{Orders: services.NewOrderService(db)}

	authLimiter := middleware.NewRateLimiter(ctx, limits.AuthPerMinute, time.Minute)
	cartLimiter := middleware.NewRateLimiter(ctx, limits.CartPerMinute, time.Minute)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		auth.Use(authLimiter.Middleware())
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)

		api.GET("/products", productHandler.GetProducts)
		api.GET("/products/:sku", productHandler.GetProduct)
	}

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware())
	{
		protected.GET("/auth/profile", authHandler.GetProfile)

		protected.GET("/cart", cartHandler.GetCart)
		protected.PATCH("/cart", cartLimiter.Middleware(), cartHandler.UpdateCart)
		protected.PUT("/cart", cartLimiter.Middleware(), cartHandler.ReplaceCart)

		protected.POST("/order", orderHandler.CreateOrder)
		protected.GET("/order/history", orderHandler.GetOrderHistory)
		protected.GET("/order/:id", orderHandler.GetOrder)
	}
}
