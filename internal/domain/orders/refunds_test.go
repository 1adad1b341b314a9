package orders_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/app"
	"marketplace/internal/app/apptest"
	"marketplace/internal/domain/inventory"
	"marketplace/internal/domain/orders"
	"marketplace/internal/infrastructure/payment"
)

// serviceWith builds an order service over the harness store with some
// collaborators replaced.
func serviceWith(t *testing.T, h *apptest.Harness, override func(*orders.Deps)) *orders.Service {
	t.Helper()
	st := app.MemoryStores(h.Store)
	gateway, err := payment.NewRedirectGateway("https://pay.test", "")
	require.NoError(t, err)
	d := orders.Deps{
		Orders:         st.Orders,
		Payments:       st.Payments,
		Refunds:        st.Refunds,
		Carts:          st.Carts,
		Catalog:        st.Catalog,
		Ledger:         h.Services.Ledger,
		TxManager:      st.TxManager,
		Outbox:         st.Outbox,
		Audit:          st.Audit,
		Gateway:        gateway,
		RefundProvider: payment.ManualRefunds{},
		PaymentTTL:     time.Hour,
	}
	override(&d)
	return orders.NewService(d)
}

type countingProvider struct {
	mu    sync.Mutex
	calls []orders.RefundRequest
	err   error
}

func (p *countingProvider) Refund(_ context.Context, req orders.RefundRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.err != nil {
		return "", p.err
	}
	return "ref-" + req.ID.String(), nil
}

func (p *countingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// brokenOutcomeQueue fails every write of the given status.
type brokenOutcomeQueue struct {
	orders.RefundQueue
	status orders.RefundRequestStatus
}

func (q *brokenOutcomeQueue) UpdateRefund(ctx context.Context, r *orders.RefundRequest) error {
	if r.Status == q.status {
		return errors.New("connection reset")
	}
	return q.RefundQueue.UpdateRefund(ctx, r)
}

type recordingLedger struct {
	orders.InventoryLedger
	reserved []inventory.Key
}

func (l *recordingLedger) Reserve(ctx context.Context, key inventory.Key, qty int) error {
	l.reserved = append(l.reserved, key)
	return l.InventoryLedger.Reserve(ctx, key, qty)
}

func paidOrderWithRefund(t *testing.T, h *apptest.Harness) *orders.Order {
	t.Helper()
	a := h.Product("Mug", "10", 5)
	b := h.Product("Plate", "5", 5)
	h.AddToCart(a.ID, 1)
	h.AddToCart(b.ID, 1)
	co := h.Checkout()
	h.Pay(co)
	o, err := h.Services.Orders.UpdateOrderItemStatus(context.Background(), co.Order.Items[0].ID, orders.ItemStatusUpdate{Status: orders.ItemRejected}, h.Vendor)
	require.NoError(t, err)
	return o
}

func TestProcessRefunds_UnsavedOutcomeIsNotResubmitted(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	o := paidOrderWithRefund(t, h)

	provider := &countingProvider{}
	svc := serviceWith(t, h, func(d *orders.Deps) {
		d.RefundProvider = provider
		d.Refunds = &brokenOutcomeQueue{RefundQueue: d.Refunds, status: orders.RefundRequestSubmitted}
	})

	submitted, err := svc.ProcessRefunds(ctx, 10)
	require.Error(t, err)
	assert.Equal(t, 1, submitted)
	assert.Equal(t, 1, provider.count())

	refunds, err := h.Services.Orders.ListRefunds(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, orders.RefundRequestSubmitting, refunds[0].Status)
	assert.Equal(t, 1, refunds[0].Attempts)

	submitted, err = svc.ProcessRefunds(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, submitted)
	assert.Equal(t, 1, provider.count(), "the provider is called once per request")
}

func TestProcessRefunds_RetriesThenParks(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	o := paidOrderWithRefund(t, h)

	provider := &countingProvider{err: errors.New("provider unavailable")}
	svc := serviceWith(t, h, func(d *orders.Deps) { d.RefundProvider = provider })

	for i := 1; i <= orders.MaxRefundAttempts+2; i++ {
		submitted, err := svc.ProcessRefunds(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, submitted)
	}
	assert.Equal(t, orders.MaxRefundAttempts, provider.count())
	for _, req := range provider.calls {
		assert.Equal(t, provider.calls[0].ID, req.ID, "retries carry the same idempotency key")
	}

	refunds, err := h.Services.Orders.ListRefunds(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, orders.RefundRequestFailed, refunds[0].Status)
	assert.Equal(t, orders.MaxRefundAttempts, refunds[0].Attempts)
	require.NotNil(t, refunds[0].LastError)
	assert.Equal(t, "provider unavailable", *refunds[0].LastError)
}

func TestCreateOrder_ReservesInKeyOrder(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	var products []inventory.Key
	for _, title := range []string{"Mug", "Plate", "Bowl"} {
		products = append(products, inventory.ProductKey(h.Product(title, "10", 5).ID))
	}
	// cart holds the lines in descending key order
	slices.SortFunc(products, func(a, b inventory.Key) int { return b.Compare(a) })
	for _, k := range products {
		h.AddToCart(k.ProductID, 1)
	}

	ledger := &recordingLedger{InventoryLedger: h.Services.Ledger}
	svc := serviceWith(t, h, func(d *orders.Deps) { d.Ledger = ledger })

	co, err := svc.CreateOrder(ctx, h.Customer.ID, orders.CreateOrderInput{ShippingAddress: apptest.Address()})
	require.NoError(t, err)
	require.Len(t, co.Order.Items, 3)
	require.Len(t, ledger.reserved, 3)
	assert.True(t, slices.IsSortedFunc(ledger.reserved, inventory.Key.Compare), ledger.reserved)
	for _, k := range products {
		assert.Equal(t, 1, h.Unit(k.ProductID).QuantityReserved)
	}
}
