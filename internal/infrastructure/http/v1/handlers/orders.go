package handlers

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/core/apperror"
	"marketplace/internal/domain/orders"
	"marketplace/internal/infrastructure/http/v1/dto"
)

// OrderHandler handles HTTP requests for orders and order items.
type OrderHandler struct {
	*BaseHandler
	service *orders.Service
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(base *BaseHandler, service *orders.Service) *OrderHandler {
	return &OrderHandler{BaseHandler: base, service: service}
}

// Create handles POST /orders
func (h *OrderHandler) Create(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.CreateOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	checkout, err := h.service.CreateOrder(c.Request.Context(), actor.ID, orders.CreateOrderInput{
		ShippingAddress: req.ShippingAddress.ToDomain(),
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromCheckout(checkout))
}

// List handles GET /orders
// Customers see their own orders; admins see all.
func (h *OrderHandler) List(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.ListOrdersRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	filter := orders.ListFilter{Limit: req.Limit, Offset: req.Offset}
	if req.Status != "" {
		status := orders.Status(req.Status)
		if !status.Valid() {
			h.Error(c, apperror.NewValidation("unknown order status").WithDetail("status", req.Status))
			return
		}
		filter.Status = &status
	}

	items, total, err := h.service.ListOrders(c.Request.Context(), actor, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: items, TotalCount: total, Limit: req.Limit, Offset: req.Offset})
}

// Get handles GET /orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	order, err := h.service.GetOrder(c.Request.Context(), orderID, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// UpdateStatus handles PATCH /orders/:id/status
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateOrderStatusRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}

	var status *orders.Status
	if req.Status != nil {
		s := orders.Status(*req.Status)
		status = &s
	}
	order, err := h.service.UpdateOrderStatus(c.Request.Context(), orderID, status, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// UpdateItemStatus handles PATCH /order-items/:id/status
func (h *OrderHandler) UpdateItemStatus(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	itemID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateItemStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}

	order, err := h.service.UpdateOrderItemStatus(c.Request.Context(), itemID, orders.ItemStatusUpdate{
		Status: orders.ItemStatus(req.Status),
		Reason: req.Reason,
	}, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// RequestCancellation handles POST /orders/:id/cancellation
func (h *OrderHandler) RequestCancellation(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.CancellationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	order, err := h.service.RequestCancellation(c.Request.Context(), orderID, actor, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// ReviewCancellation handles POST /orders/:id/cancellation/review
func (h *OrderHandler) ReviewCancellation(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if !h.BindJSON(c, &req) {
		return
	}
	order, err := h.service.ReviewCancellation(c.Request.Context(), orderID, req.Approved(), actor, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// InitiatePayment handles POST /orders/:id/payments
func (h *OrderHandler) InitiatePayment(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	session, err := h.service.InitiatePayment(c.Request.Context(), orderID, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, session)
}

// Refunds handles GET /orders/:id/refunds
func (h *OrderHandler) Refunds(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// GetOrder carries the visibility check.
	if _, err := h.service.GetOrder(ctx, orderID, actor); err != nil {
		h.Error(c, err)
		return
	}
	refunds, err := h.service.ListRefunds(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, refunds)
}

// PaymentWebhook handles POST /payments/webhook
func (h *OrderHandler) PaymentWebhook(c *gin.Context) {
	var req dto.PaymentWebhookRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if err := h.service.HandlePaymentNotification(c.Request.Context(), req.ToDomain()); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
