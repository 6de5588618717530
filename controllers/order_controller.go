package controllers

import (
	"context"
	"net/http"
	"strconv"

	"checkout-service/models"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OrderAPI is the order service as the HTTP layer sees it.
type OrderAPI interface {
	PlaceOrder(ctx context.Context, userID string, req *models.PlaceOrderRequest) (*models.Order, *services.ServiceError)
	GetOrder(ctx context.Context, userID, orderID string) (*models.Order, *services.ServiceError)
	ListUserOrders(ctx context.Context, userID string, page, limit int, status string) (*services.OrderList, *services.ServiceError)
	ListAllOrders(ctx context.Context, page, limit int, status string) (*services.OrderList, *services.ServiceError)
	UpdateOrderStatus(ctx context.Context, orderID string, req *models.UpdateOrderStatusRequest) (*models.Order, *services.ServiceError)
	RequestCancellation(ctx context.Context, userID, orderID, reason string) (*models.Order, *services.ServiceError)
}

type OrderController struct {
	Orders OrderAPI
	Logger *zap.Logger
}

func NewOrderController(orders OrderAPI, logger *zap.Logger) *OrderController {
	return &OrderController{Orders: orders, Logger: logger}
}

// PlaceOrder turns the caller's cart into an order.
func (oc *OrderController) PlaceOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, serr := oc.Orders.PlaceOrder(c.Request.Context(), userID, &req)
	if serr != nil {
		_ = c.Error(serr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Order placed successfully", "order": order})
}

func (oc *OrderController) GetOrders(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	page, limit := pageArgs(c)

	list, serr := oc.Orders.ListUserOrders(c.Request.Context(), userID, page, limit, c.Query("status"))
	if serr != nil {
		_ = c.Error(serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": list.Orders, "pagination": list.Pagination})
}

func (oc *OrderController) GetOrderByID(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	order, serr := oc.Orders.GetOrder(c.Request.Context(), userID, c.Param("id"))
	if serr != nil {
		_ = c.Error(serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

// CancelOrder accepts an optional {reason} body.
func (oc *OrderController) CancelOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	order, serr := oc.Orders.RequestCancellation(c.Request.Context(), userID, c.Param("id"), req.Reason)
	if serr != nil {
		_ = c.Error(serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Cancellation requested", "order": order})
}

// UpdateOrderStatus is admin only.
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	var req models.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	order, serr := oc.Orders.UpdateOrderStatus(c.Request.Context(), c.Param("id"), &req)
	if serr != nil {
		_ = c.Error(serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

func (oc *OrderController) GetAllOrders(c *gin.Context) {
	page, limit := pageArgs(c)
	list, serr := oc.Orders.ListAllOrders(c.Request.Context(), page, limit, c.Query("status"))
	if serr != nil {
		_ = c.Error(serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": list.Orders, "pagination": list.Pagination})
}

// pageArgs reads page and limit; bad values fall back to the service defaults.
func pageArgs(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	return page, limit
}
