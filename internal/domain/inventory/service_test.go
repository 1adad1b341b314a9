package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/core/security"
	"marketplace/internal/core/types"
	"marketplace/internal/domain/catalog"
	"marketplace/internal/domain/inventory"
	"marketplace/internal/infrastructure/storage/memory"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []inventory.Notification
}

func (b *recordingBroadcaster) Publish(_ context.Context, n inventory.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, n)
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

type fixture struct {
	store     *memory.Store
	ledger    *inventory.Ledger
	broadcast *recordingBroadcaster
	vendorID  id.ID
	product   catalog.Product
	variantID id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	f := &fixture{
		store:     store,
		broadcast: &recordingBroadcaster{},
		vendorID:  id.New(),
		variantID: id.New(),
	}
	productID := id.New()
	f.product = catalog.Product{
		ID:           productID,
		VendorID:     f.vendorID,
		Title:        "Widget",
		Status:       catalog.StatusActive,
		RegularPrice: types.MustMoney("10"),
		InitialStock: 5,
		Variants: []catalog.Variant{{
			ID:        f.variantID,
			ProductID: productID,
			Name:      "Large",
			Status:    catalog.StatusActive,
			Price:     types.MustMoney("12"),
			Stock:     3,
		}},
	}
	require.NoError(t, store.Catalog().PutProduct(context.Background(), f.product))
	f.ledger = inventory.NewLedger(store.Inventory(), store.Catalog(), store, f.broadcast)
	return f
}

func (f *fixture) key() inventory.Key { return inventory.ProductKey(f.product.ID) }

func (f *fixture) unit(t *testing.T) *inventory.StockUnit {
	t.Helper()
	u, err := f.ledger.GetStockUnit(context.Background(), f.key())
	require.NoError(t, err)
	return u
}

func TestLedger_ReserveReleaseRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Reserve(ctx, f.key(), 3))
	u := f.unit(t)
	assert.Equal(t, 5, u.QuantityAvailable)
	assert.Equal(t, 3, u.QuantityReserved)

	qty, err := f.ledger.GetAvailableQuantity(ctx, f.key())
	require.NoError(t, err)
	assert.Equal(t, 2, qty)

	require.NoError(t, f.ledger.Release(ctx, f.key(), 3))
	u = f.unit(t)
	assert.Equal(t, 5, u.QuantityAvailable)
	assert.Equal(t, 0, u.QuantityReserved)

	movements, err := f.ledger.ListMovements(ctx, f.key(), inventory.MovementFilter{})
	require.NoError(t, err)
	assert.Empty(t, movements, "reservations do not touch on-hand stock")
}

func TestLedger_ReleaseClampsAndIgnoresMissingUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Release(ctx, inventory.ProductKey(id.New()), 2))

	require.NoError(t, f.ledger.Reserve(ctx, f.key(), 1))
	require.NoError(t, f.ledger.Release(ctx, f.key(), 4))
	assert.Equal(t, 0, f.unit(t).QuantityReserved)
}

func TestLedger_ReserveInsufficient(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.Reserve(context.Background(), f.key(), 6)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
	assert.Contains(t, err.Error(), "Insufficient stock for Widget")
}

func TestLedger_ConcurrentReservationsNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.ledger.Reserve(ctx, f.key(), 3)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if apperror.HasCode(err, apperror.CodeInsufficientStock) {
				fail++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, fail)
	assert.Equal(t, 3, f.unit(t).QuantityReserved)
}

func TestLedger_DeductConsumesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := inventory.Reference{ID: "order-1", Type: inventory.RefOrder, Reason: "order paid"}

	require.NoError(t, f.ledger.Reserve(ctx, f.key(), 2))
	require.NoError(t, f.ledger.Deduct(ctx, f.key(), 2, ref))

	u := f.unit(t)
	assert.Equal(t, 3, u.QuantityAvailable)
	assert.Equal(t, 0, u.QuantityReserved)

	movements, err := f.ledger.ListMovements(ctx, f.key(), inventory.MovementFilter{})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, inventory.MovementOut, movements[0].Type)
	assert.Equal(t, 2, movements[0].Quantity)
	assert.Equal(t, 3, movements[0].BalanceAfter)
	assert.Equal(t, inventory.RefOrder, movements[0].ReferenceType)
}

func TestLedger_DeductKeepsReservedWithinAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Reserve(ctx, f.key(), 5))
	require.NoError(t, f.ledger.Deduct(ctx, f.key(), 4, inventory.Reference{Type: inventory.RefOrder}))

	u := f.unit(t)
	assert.Equal(t, 1, u.QuantityAvailable)
	assert.Equal(t, 1, u.QuantityReserved)

	err := f.ledger.Deduct(ctx, f.key(), 2, inventory.Reference{Type: inventory.RefOrder})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
}

func TestLedger_Refund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Refund(ctx, f.key(), 2, inventory.Reference{ID: "ri-1", Type: inventory.RefReturn, Reason: "return received"}))
	assert.Equal(t, 7, f.unit(t).QuantityAvailable)

	in := inventory.MovementIn
	movements, err := f.ledger.ListMovements(ctx, f.key(), inventory.MovementFilter{Type: &in})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, "return received", movements[0].Reason)
}

func TestLedger_Adjust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := inventory.Reference{Reason: "stock count"}

	_, err := f.ledger.Adjust(ctx, f.key(), 0, ref)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.ledger.Adjust(ctx, f.key(), 2, inventory.Reference{})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	u, err := f.ledger.Adjust(ctx, f.key(), 4, ref)
	require.NoError(t, err)
	assert.Equal(t, 9, u.QuantityAvailable)

	require.NoError(t, f.ledger.Reserve(ctx, f.key(), 8))
	_, err = f.ledger.Adjust(ctx, f.key(), -2, ref)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock), "cannot adjust below reserved")

	u, err = f.ledger.Adjust(ctx, f.key(), -1, ref)
	require.NoError(t, err)
	assert.Equal(t, 8, u.QuantityAvailable)
	assert.Equal(t, 8, u.QuantityReserved)

	movements, err := f.ledger.ListMovements(ctx, f.key(), inventory.MovementFilter{})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	for _, m := range movements {
		assert.Equal(t, inventory.MovementAdjustment, m.Type)
		assert.Equal(t, inventory.RefManual, m.ReferenceType)
		assert.Positive(t, m.Quantity)
	}
}

func TestLedger_Restock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := id.New()

	rs, err := f.ledger.Restock(ctx, f.key(), inventory.RestockInput{
		Quantity:  10,
		UnitCost:  types.MustMoney("4.20"),
		Supplier:  "Acme",
		CreatedBy: &admin,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, rs.Quantity)
	assert.False(t, rs.RestockedAt.IsZero())
	assert.Equal(t, 15, f.unit(t).QuantityAvailable)

	movements, err := f.ledger.ListMovements(ctx, f.key(), inventory.MovementFilter{})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, inventory.RefRestock, movements[0].ReferenceType)
	assert.Equal(t, "restock from Acme", movements[0].Reason)

	_, err = f.ledger.Restock(ctx, f.key(), inventory.RestockInput{Quantity: 0})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestLedger_AvailableFallsBackToCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	qty, err := f.ledger.GetAvailableQuantity(ctx, f.key())
	require.NoError(t, err)
	assert.Equal(t, 5, qty)

	qty, err = f.ledger.GetAvailableQuantity(ctx, inventory.VariantKey(f.product.ID, f.variantID))
	require.NoError(t, err)
	assert.Equal(t, 3, qty)

	_, err = f.ledger.GetStockUnit(ctx, f.key())
	assert.True(t, apperror.IsNotFound(err), "reading must not create the unit")
}

func TestLedger_VariantUnitIsSeparate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vkey := inventory.VariantKey(f.product.ID, f.variantID)

	require.NoError(t, f.ledger.Reserve(ctx, vkey, 3))
	err := f.ledger.Reserve(ctx, vkey, 1)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	require.NoError(t, f.ledger.Reserve(ctx, f.key(), 5))
}

func TestLedger_SetReorderLevelAndLowStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.SetReorderLevel(ctx, f.key(), -1)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	u, err := f.ledger.SetReorderLevel(ctx, f.key(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, u.ReorderLevel)

	low, err := f.ledger.LowStockForVendor(ctx, f.vendorID)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, f.product.ID, low[0].ProductID)

	low, err = f.ledger.LowStockForVendor(ctx, id.New())
	require.NoError(t, err)
	assert.Empty(t, low)
}

func TestLedger_BroadcastsOnlyAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := f.store.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, f.ledger.Reserve(ctx, f.key(), 2))
		assert.Equal(t, 0, f.broadcast.count(), "nothing is sent before commit")
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, f.broadcast.count())

	_, err = f.ledger.GetStockUnit(ctx, f.key())
	assert.True(t, apperror.IsNotFound(err), "rolled back unit creation")

	require.NoError(t, f.ledger.Reserve(ctx, f.key(), 2))
	require.Equal(t, 1, f.broadcast.count())
	n := f.broadcast.sent[0]
	assert.Equal(t, inventory.ScopeProduct, n.Scope)
	assert.Equal(t, 5, n.QuantityAvailable)
	assert.Equal(t, 2, n.QuantityReserved)
}

func TestLedger_AuthorizeManage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.ledger.AuthorizeManage(ctx, security.Actor{ID: id.New(), Role: security.RoleAdmin}, f.key()))
	assert.NoError(t, f.ledger.AuthorizeManage(ctx, security.Actor{ID: f.vendorID, Role: security.RoleVendor}, f.key()))

	err := f.ledger.AuthorizeManage(ctx, security.Actor{ID: id.New(), Role: security.RoleVendor}, f.key())
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))

	err = f.ledger.AuthorizeManage(ctx, security.Actor{ID: id.New(), Role: security.RoleCustomer}, f.key())
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))
}

func TestResolveKey_FallsBackToProductLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key, err := inventory.ResolveKey(ctx, f.store.Catalog(), f.product.ID, &f.variantID)
	require.NoError(t, err)
	assert.True(t, key.IsVariant())

	gone := id.New()
	key, err = inventory.ResolveKey(ctx, f.store.Catalog(), f.product.ID, &gone)
	require.NoError(t, err)
	assert.False(t, key.IsVariant())

	key, err = inventory.ResolveKey(ctx, f.store.Catalog(), id.New(), &gone)
	require.NoError(t, err)
	assert.False(t, key.IsVariant())
}

func TestKey_Compare(t *testing.T) {
	p1, p2 := id.New(), id.New()
	if p2.String() < p1.String() {
		p1, p2 = p2, p1
	}
	v := id.New()

	assert.Zero(t, inventory.ProductKey(p1).Compare(inventory.ProductKey(p1)))
	assert.Zero(t, inventory.VariantKey(p1, v).Compare(inventory.VariantKey(p1, v)))
	assert.Negative(t, inventory.ProductKey(p1).Compare(inventory.ProductKey(p2)))
	assert.Negative(t, inventory.VariantKey(p1, v).Compare(inventory.ProductKey(p2)))
	assert.Negative(t, inventory.ProductKey(p1).Compare(inventory.VariantKey(p1, v)), "product unit sorts before its variants")
	assert.Positive(t, inventory.VariantKey(p1, v).Compare(inventory.ProductKey(p1)))
}
