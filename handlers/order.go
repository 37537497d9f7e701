package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"storefront-backend/middleware"
	"storefront-backend/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type OrderHandler struct {
	Orders *services.OrderService
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	order, err := h.Orders.SubmitOrder(c.Request.Context(), userID)
	switch {
	case errors.Is(err, services.ErrCartNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart not found"})
		return
	case errors.Is(err, services.ErrCartOwnership):
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart not found for this user"})
		return
	case errors.Is(err, services.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
		return
	case err != nil:
		slog.Error("failed to submit order", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order"})
		return
	}

	slog.Info("order submitted", "user_id", userID, "order_id", order.ID, "transaction_id", order.TransactionID, "amount", order.Amount)
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) GetOrderHistory(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	history, err := h.Orders.OrderHistory(c.Request.Context(), userID)
	if err != nil {
		slog.Error("failed to fetch order history", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch orders"})
		return
	}

	c.JSON(http.StatusOK, history)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, err := h.Orders.GetOrder(c.Request.Context(), userID, orderID)
	if errors.Is(err, services.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		slog.Error("failed to fetch order", "user_id", userID, "order_id", orderID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order"})
		return
	}

	c.JSON(http.StatusOK, services.Summarize(*order))
}
