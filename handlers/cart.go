package handlers

import (
	"log/slog"
	"net/http"

	"storefront-backend/dtos"
	"storefront-backend/middleware"
	"storefront-backend/services"
	"storefront-backend/utils"

	"github.com/gin-gonic/gin"
)

type CartHandler struct {
	Carts *services.CartService
}

func (h *CartHandler) GetCart(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	items, err := h.Carts.GetCart(c.Request.Context(), userID)
	if err != nil {
		slog.Error("failed to fetch cart", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cart"})
		return
	}

	c.JSON(http.StatusOK, items)
}

// UpdateCart applies add/remove/update lists to the stored cart.
func (h *CartHandler) UpdateCart(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req dtos.CartPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	view, err := h.Carts.UpdateCart(c.Request.Context(), userID, req)
	if err != nil {
		slog.Error("failed to update cart", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update cart"})
		return
	}

	c.JSON(http.StatusOK, view)
}

// ReplaceCart makes the stored cart match the client's full cart.
func (h *CartHandler) ReplaceCart(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req dtos.CartReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	view, err := h.Carts.ReplaceCart(c.Request.Context(), userID, req.Cart, req.Seq)
	if err != nil {
		slog.Error("failed to replace cart", "user_id", userID, "seq", req.Seq, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to replace cart"})
		return
	}

	c.JSON(http.StatusOK, view)
}
