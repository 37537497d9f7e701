package handlers

import (
	"net/http"

	"storefront-backend/cache"
	"storefront-backend/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ProductHandler struct {
	DB    *gorm.DB
	Cache *cache.CatalogCache
}

// GetProducts serves the whole catalog, from the cache when it holds it.
func (h *ProductHandler) GetProducts(c *gin.Context) {
	ctx := c.Request.Context()
	if products, ok := h.Cache.GetProducts(ctx); ok {
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, products)
		return
	}

	products := []models.Product{}
	if err := h.DB.WithContext(ctx).Order("sku").Find(&products).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}

	h.Cache.SetProducts(ctx, products)
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, products)
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	var product models.Product
	if err := h.DB.WithContext(c.Request.Context()).Where("sku = ?", c.Param("sku")).First(&product).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	c.JSON(http.StatusOK, product)
}
