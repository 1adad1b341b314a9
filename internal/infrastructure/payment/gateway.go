// Package payment holds the adapters for the external payment provider.
package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"marketplace/internal/core/apperror"
	"marketplace/internal/domain/orders"
	"marketplace/pkg/logger"
)

var (
	_ orders.Gateway        = (*RedirectGateway)(nil)
	_ orders.RefundProvider = (*ManualRefunds)(nil)
)

// RedirectGateway builds hosted-checkout URLs. The provider calls back
// on the webhook with the same reference.
type RedirectGateway struct {
	baseURL   string
	returnURL string
}

func NewRedirectGateway(baseURL, returnURL string) (*RedirectGateway, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("payment gateway url: %w", err)
	}
	return &RedirectGateway{baseURL: strings.TrimRight(baseURL, "/"), returnURL: returnURL}, nil
}

func (g *RedirectGateway) Initiate(ctx context.Context, req orders.PaymentRequest) (string, error) {
	if req.Reference == "" {
		return "", apperror.NewValidation("payment reference is required")
	}
	if !req.Amount.IsPositive() {
		return "", apperror.NewValidation("payment amount must be positive").WithDetail("order_number", req.OrderNumber)
	}

	q := url.Values{}
	q.Set("reference", req.Reference)
	q.Set("order", req.OrderNumber)
	q.Set("amount", req.Amount.StringFixed(2))
	if g.returnURL != "" {
		q.Set("return_url", g.returnURL)
	}

	logger.Debug(ctx, "payment redirect built", "reference", req.Reference, "order_number", req.OrderNumber)
	return g.baseURL + "/checkout?" + q.Encode(), nil
}

// ManualRefunds records refunds for back-office execution. The returned
// reference is what finance matches against the provider dashboard.
type ManualRefunds struct{}

func (ManualRefunds) Refund(ctx context.Context, req orders.RefundRequest) (string, error) {
	if !req.Amount.IsPositive() {
		return "", apperror.NewValidation("refund amount must be positive").WithDetail("refund_id", req.ID)
	}
	ref := "manual-" + req.ID.String()
	logger.Info(ctx, "refund queued for manual execution",
		"refund_id", req.ID,
		"order_id", req.OrderID,
		"kind", req.Kind,
		"amount", req.Amount.StringFixed(2),
	)
	return ref, nil
}
