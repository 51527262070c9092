package api

import (
	"net/http"

	"invite_mall/internal/model"
	"invite_mall/internal/service"
	"invite_mall/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type orderRoutes struct {
	os service.OrderServiceI
	a  *auth.TelegramAuth
}

func NewOrderRoutes(handler *gin.RouterGroup, os service.OrderServiceI, a *auth.TelegramAuth) {
	r := &orderRoutes{os: os, a: a}

	h := handler.Group("/orders")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.POST("", r.CreateOrder)
		h.GET("", r.ListOrders)
		h.POST("/:order_id/pay", r.PayOrder)
		h.POST("/:order_id/receive", r.ReceiveOrder)
	}
}

type CreateOrderRequest struct {
	Amount      *decimal.Decimal `json:"amount" binding:"required"`
	AddressHash string           `json:"address_hash"`
}

func (r *orderRoutes) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := r.os.Create(c.Request.Context(), auth.UserID(c), *req.Amount, service.CreateOrderOptions{
		AddressHash: req.AddressHash,
	})
	if err != nil {
		respondError(c, err, "failed to create order")
		return
	}

	c.JSON(http.StatusCreated, newOrderResponse(order))
}

func (r *orderRoutes) ListOrders(c *gin.Context) {
	orders, err := r.os.ListByUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err, "failed to list orders")
		return
	}

	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = newOrderResponse(o)
	}
	c.JSON(http.StatusOK, out)
}

type PayOrderRequest struct {
	PayAmount *decimal.Decimal `json:"pay_amount"`
}

func (r *orderRoutes) PayOrder(c *gin.Context) {
	var req PayOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	orderID, ok := r.ownOrder(c)
	if !ok {
		return
	}

	order, err := r.os.Pay(c.Request.Context(), orderID, req.PayAmount)
	if err != nil {
		respondError(c, err, "failed to pay order")
		return
	}

	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (r *orderRoutes) ReceiveOrder(c *gin.Context) {
	orderID, ok := r.ownOrder(c)
	if !ok {
		return
	}

	order, err := r.os.Receive(c.Request.Context(), orderID, model.ReceiveManual)
	if err != nil {
		respondError(c, err, "failed to receive order")
		return
	}

	c.JSON(http.StatusOK, newOrderResponse(order))
}

// ownOrder reports the order from the path when it belongs to the caller.
// Orders of other users look missing.
func (r *orderRoutes) ownOrder(c *gin.Context) (string, bool) {
	orderID := c.Param("order_id")

	order, err := r.os.Get(c.Request.Context(), orderID)
	if err == nil && order.UserID != auth.UserID(c) {
		err = service.ErrOrderNotFound
	}
	if err != nil {
		respondError(c, err, "failed to get order")
		return "", false
	}
	return orderID, true
}
