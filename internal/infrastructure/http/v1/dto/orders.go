package dto

import (
	"time"

	"marketplace/internal/domain/orders"
)

// AddressRequest is the shipping address submitted at checkout.
type AddressRequest struct {
	FullName   string `json:"fullName" binding:"required"`
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" binding:"required"`
	Region     string `json:"region"`
	PostalCode string `json:"postalCode" binding:"required"`
	Country    string `json:"country" binding:"required"`
	Phone      string `json:"phone"`
}

func (a AddressRequest) ToDomain() orders.Address {
	return orders.Address{
		FullName:   a.FullName,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

// CreateOrderRequest converts the caller's cart into an order.
type CreateOrderRequest struct {
	ShippingAddress AddressRequest `json:"shippingAddress" binding:"required"`
}

// CheckoutResponse carries the new order and the payment context opened for it.
type CheckoutResponse struct {
	Order            *orders.Order `json:"order"`
	PaymentReference string        `json:"paymentReference"`
	PaymentExpiresAt time.Time     `json:"paymentExpiresAt"`
}

func FromCheckout(c *orders.Checkout) CheckoutResponse {
	return CheckoutResponse{
		Order:            c.Order,
		PaymentReference: c.PaymentReference,
		PaymentExpiresAt: c.PaymentExpiresAt,
	}
}

// ListOrdersRequest filters GET /orders.
type ListOrdersRequest struct {
	PaginationRequest
	Status string `form:"status"`
}

// UpdateOrderStatusRequest sets an explicit status. An empty body recomputes
// the status from the items.
type UpdateOrderStatusRequest struct {
	Status *string `json:"status"`
}

// UpdateItemStatusRequest moves one order line.
type UpdateItemStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// CancellationRequest is the customer's cancellation ask.
type CancellationRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ReviewRequest approves or rejects a pending request.
type ReviewRequest struct {
	Decision string `json:"decision" binding:"required,oneof=APPROVED REJECTED"`
	Reason   string `json:"reason"`
}

func (r ReviewRequest) Approved() bool {
	return r.Decision == string(orders.RequestApproved)
}

// PaymentWebhookRequest is the gateway notification body.
type PaymentWebhookRequest struct {
	Reference string `json:"reference" binding:"required"`
	Status    string `json:"status" binding:"required,oneof=COMPLETE FAILED CANCELLED"`
}

func (r PaymentWebhookRequest) ToDomain() orders.PaymentNotification {
	return orders.PaymentNotification{
		Reference: r.Reference,
		Status:    orders.GatewayStatus(r.Status),
	}
}
