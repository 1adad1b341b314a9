package app_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/app"
	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/core/security"
	"marketplace/internal/core/types"
	"marketplace/internal/domain/cart"
	"marketplace/internal/domain/catalog"
	"marketplace/internal/domain/inventory"
	"marketplace/internal/domain/orders"
	"marketplace/internal/infrastructure/payment"
	"marketplace/internal/infrastructure/storage/postgres"
	"marketplace/internal/infrastructure/storage/postgres/catalog_repo"
)

type pgEnv struct {
	products *catalog_repo.ProductRepo
	carts    *catalog_repo.CartRepo
	services *app.Services
}

func setupPostgres(t *testing.T) *pgEnv {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn, 10))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))

	txm := postgres.NewTxManager(pool)
	stores, err := app.PostgresStores(txm)
	require.NoError(t, err)

	gateway, err := payment.NewRedirectGateway("https://pay.test", "")
	require.NoError(t, err)

	return &pgEnv{
		products: catalog_repo.NewProductRepo(txm),
		carts:    catalog_repo.NewCartRepo(txm),
		services: app.NewServices(stores, app.Integrations{
			Gateway:        gateway,
			RefundProvider: payment.ManualRefunds{},
			PaymentTTL:     time.Hour,
		}),
	}
}

func (e *pgEnv) product(t *testing.T, vendorID id.ID, price string, stock int) catalog.Product {
	t.Helper()
	p := catalog.Product{
		ID:           id.New(),
		VendorID:     vendorID,
		Title:        "integration product",
		Status:       catalog.StatusActive,
		RegularPrice: types.MustMoney(price),
		InitialStock: stock,
	}
	require.NoError(t, e.products.PutProduct(context.Background(), p))
	return p
}

func TestPostgres_CheckoutPayAndReturnStock(t *testing.T) {
	e := setupPostgres(t)
	ctx := context.Background()
	vendor := security.Actor{ID: id.New(), Role: security.RoleVendor}
	customer := security.Actor{ID: id.New(), Role: security.RoleCustomer}

	p := e.product(t, vendor.ID, "150.00", 5)
	require.NoError(t, e.carts.AddItem(ctx, customer.ID, cart.Item{ProductID: p.ID, Quantity: 2}))

	co, err := e.services.Orders.CreateOrder(ctx, customer.ID, orders.CreateOrderInput{
		ShippingAddress: orders.Address{FullName: "A", Line1: "B", City: "C", PostalCode: "1", Country: "US"},
	})
	require.NoError(t, err)
	assert.True(t, types.MustMoney("300").Equal(co.Order.TotalAmount))

	unit, err := e.services.Ledger.GetStockUnit(ctx, inventory.ProductKey(p.ID))
	require.NoError(t, err)
	assert.Equal(t, 5, unit.QuantityAvailable)
	assert.Equal(t, 2, unit.QuantityReserved)

	c, err := e.carts.GetCartWithItems(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	notification := orders.PaymentNotification{Reference: co.PaymentReference, Status: orders.GatewayComplete}
	require.NoError(t, e.services.Orders.HandlePaymentNotification(ctx, notification))
	// A replayed webhook is a no-op.
	require.NoError(t, e.services.Orders.HandlePaymentNotification(ctx, notification))

	unit, err = e.services.Ledger.GetStockUnit(ctx, inventory.ProductKey(p.ID))
	require.NoError(t, err)
	assert.Equal(t, 3, unit.QuantityAvailable)
	assert.Equal(t, 0, unit.QuantityReserved)

	moves, err := e.services.Ledger.ListMovements(ctx, inventory.ProductKey(p.ID), inventory.MovementFilter{})
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, inventory.MovementOut, moves[0].Type)
	assert.Equal(t, 2, moves[0].Quantity)
}

func TestPostgres_FailedLineRollsBackCheckout(t *testing.T) {
	e := setupPostgres(t)
	ctx := context.Background()
	vendorID := id.New()
	customerID := id.New()

	a := e.product(t, vendorID, "10", 5)
	b := e.product(t, vendorID, "10", 3)
	require.NoError(t, e.carts.AddItem(ctx, customerID, cart.Item{ProductID: a.ID, Quantity: 2}))
	require.NoError(t, e.carts.AddItem(ctx, customerID, cart.Item{ProductID: b.ID, Quantity: 10}))

	_, err := e.services.Orders.CreateOrder(ctx, customerID, orders.CreateOrderInput{
		ShippingAddress: orders.Address{FullName: "A", Line1: "B", City: "C", PostalCode: "1", Country: "US"},
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	qty, err := e.services.Ledger.GetAvailableQuantity(ctx, inventory.ProductKey(a.ID))
	require.NoError(t, err)
	assert.Equal(t, 5, qty)

	list, total, err := e.services.Orders.ListOrders(ctx, security.Actor{ID: customerID, Role: security.RoleCustomer}, orders.ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)

	c, err := e.carts.GetCartWithItems(ctx, customerID)
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
}

func TestPostgres_ConcurrentReservationsNeverOversell(t *testing.T) {
	e := setupPostgres(t)
	ctx := context.Background()
	p := e.product(t, id.New(), "1", 5)
	key := inventory.ProductKey(p.ID)

	_, err := e.services.Ledger.FindOrCreate(ctx, key, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.services.Ledger.Reserve(ctx, key, 3)
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock), err)
		}
	}
	assert.Equal(t, 1, failed)

	unit, err := e.services.Ledger.GetStockUnit(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, unit.QuantityReserved)
}
