package payment

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/core/types"
	"marketplace/internal/domain/orders"
)

func TestRedirectGateway_Initiate(t *testing.T) {
	g, err := NewRedirectGateway("https://pay.example.com/", "https://shop.example.com/orders")
	require.NoError(t, err)

	redirect, err := g.Initiate(context.Background(), orders.PaymentRequest{
		Reference:   "ref-1",
		OrderID:     id.New(),
		OrderNumber: "ORD-ABC-123456",
		Amount:      types.MustMoney("300"),
	})
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "pay.example.com", u.Host)
	assert.Equal(t, "/checkout", u.Path)
	assert.Equal(t, "ref-1", u.Query().Get("reference"))
	assert.Equal(t, "300.00", u.Query().Get("amount"))
	assert.Equal(t, "https://shop.example.com/orders", u.Query().Get("return_url"))
}

func TestRedirectGateway_RejectsZeroAmount(t *testing.T) {
	g, err := NewRedirectGateway("https://pay.example.com", "")
	require.NoError(t, err)

	_, err = g.Initiate(context.Background(), orders.PaymentRequest{Reference: "r", Amount: types.Zero()})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestNewRedirectGateway_InvalidURL(t *testing.T) {
	_, err := NewRedirectGateway("not a url", "")
	assert.Error(t, err)
}

func TestManualRefunds(t *testing.T) {
	req := orders.RefundRequest{ID: id.New(), OrderID: id.New(), Amount: types.MustMoney("12.50"), Kind: orders.RefundPartial}
	ref, err := ManualRefunds{}.Refund(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "manual-"+req.ID.String(), ref)
}
