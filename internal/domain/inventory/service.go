package inventory

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/core/security"
	"marketplace/internal/core/tx"
	"marketplace/internal/domain/catalog"
	"marketplace/pkg/logger"
)

var tracer = otel.Tracer("marketplace/inventory")

// Ledger owns stock units. Every mutation runs in a transaction (joining the
// caller's when present) and locks the unit row first.
type Ledger struct {
	repo        Repository
	catalog     catalog.Reader
	txm         tx.Manager
	broadcaster Broadcaster
	now         func() time.Time
}

// NewLedger creates the inventory ledger. A nil broadcaster disables notifications.
func NewLedger(repo Repository, reader catalog.Reader, txm tx.Manager, broadcaster Broadcaster) *Ledger {
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	return &Ledger{
		repo:        repo,
		catalog:     reader,
		txm:         txm,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

func (l *Ledger) span(ctx context.Context, name string, key Key) (context.Context, trace.Span) {
	return tracer.Start(ctx, "inventory."+name, trace.WithAttributes(
		attribute.String("stock.key", key.String()),
	))
}

// FindOrCreate returns the unit for key, creating it when absent. initial
// overrides the catalog default (variant stock or product initial stock).
func (l *Ledger) FindOrCreate(ctx context.Context, key Key, initial *int) (*StockUnit, error) {
	ctx, span := l.span(ctx, "FindOrCreate", key)
	defer span.End()

	var unit *StockUnit
	err := l.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		unit, err = l.lockOrCreate(ctx, key, initial)
		return err
	})
	return unit, err
}

// Reserve holds qty for a pending order. No movement is written.
func (l *Ledger) Reserve(ctx context.Context, key Key, qty int) error {
	ctx, span := l.span(ctx, "Reserve", key)
	defer span.End()

	if qty <= 0 {
		return apperror.NewValidation("reserve quantity must be positive").WithDetail("quantity", qty)
	}

	return l.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		unit, err := l.lockOrCreate(ctx, key, nil)
		if err != nil {
			return err
		}
		if unit.Sellable() < qty {
			return l.insufficient(ctx, key, qty, unit.Sellable())
		}

		unit.QuantityReserved += qty
		if err := l.save(ctx, unit); err != nil {
			return err
		}
		l.notify(ctx, unit)
		return nil
	})
}

// Release drops up to qty of a reservation. Absent units and over-release are no-ops.
func (l *Ledger) Release(ctx context.Context, key Key, qty int) error {
	ctx, span := l.span(ctx, "Release", key)
	defer span.End()

	if qty <= 0 {
		return apperror.NewValidation("release quantity must be positive").WithDetail("quantity", qty)
	}

	return l.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		unit, err := l.repo.GetForUpdate(ctx, key)
		if apperror.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock stock unit %s: %w", key, err)
		}

		unit.QuantityReserved = max(0, unit.QuantityReserved-qty)
		if err := l.save(ctx, unit); err != nil {
			return err
		}
		l.notify(ctx, unit)
		return nil
	})
}

// Deduct permanently removes qty, consuming the matching reservation.
func (l *Ledger) Deduct(ctx context.Context, key Key, qty int, ref Reference) error {
	ctx, span := l.span(ctx, "Deduct", key)
	defer span.End()

	if qty <= 0 {
		return apperror.NewValidation("deduct quantity must be positive").WithDetail("quantity", qty)
	}

	return l.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		unit, err := l.lockOrCreate(ctx, key, nil)
		if err != nil {
			return err
		}
		if unit.QuantityAvailable-qty < 0 {
			return l.insufficient(ctx, key, qty, unit.QuantityAvailable)
		}

		unit.QuantityAvailable -= qty
		unit.QuantityReserved = max(0, unit.QuantityReserved-qty)
		// keep reserved <= available when the reservation was smaller than qty
		unit.QuantityReserved = min(unit.QuantityReserved, unit.QuantityAvailable)

		if err := l.save(ctx, unit); err != nil {
			return err
		}
		if err := l.appendMovement(ctx, unit, MovementOut, qty, ref); err != nil {
			return err
		}
		l.notify(ctx, unit)
		return nil
	})
}

// Refund puts qty back on hand.
func (l *Ledger) Refund(ctx context.Context, key Key, qty int, ref Reference) error {
	ctx, span := l.span(ctx, "Refund", key)
	defer span.End()

	if qty <= 0 {
		return apperror.NewValidation("refund quantity must be positive").WithDetail("quantity", qty)
	}

	return l.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		unit, err := l.lockOrCreate(ctx, key, nil)
		if err != nil {
			return err
		}

		unit.QuantityAvailable += qty
		if err := l.save(ctx, unit); err != nil {
			return err
		}
		if err := l.appendMovement(ctx, unit, MovementIn, qty, ref); err != nil {
			return err
		}
		l.notify(ctx, unit)
		return nil
	})
}

// Adjust applies a signed manual correction. Reductions may only consume sellable stock.
func (l *Ledger) Adjust(ctx context.Context, key Key, delta int, ref Reference) (*StockUnit, error) {
	ctx, span := l.span(ctx, "Adjust", key)
	defer span.End()

	if delta == 0 {
		return nil, apperror.NewValidation("adjustment delta must not be zero")
	}
	if ref.Reason == "" {
		return nil, apperror.NewValidation("adjustment reason is required")
	}
	if ref.Type == "" {
		ref.Type = RefManual
	}

	var unit *StockUnit
	err := l.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		unit, err = l.lockOrCreate(ctx, key, nil)
		if err != nil {
			return err
		}
		if delta < 0 && unit.Sellable() < -delta {
			return l.insufficient(ctx, key, -delta, unit.Sellable())
		}

		unit.QuantityAvailable += delta
		if err := l.save(ctx, unit); err != nil {
			return err
		}
		if err := l.appendMovement(ctx, unit, MovementAdjustment, abs(delta), ref); err != nil {
			return err
		}
		l.notify(ctx, unit)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock adjusted", "key", key.String(), "delta", delta, "available", unit.QuantityAvailable)
	return unit, nil
}

// Restock records a supplier delivery and adds it to on-hand stock.
func (l *Ledger) Restock(ctx context.Context, key Key, in RestockInput) (*Restock, error) {
	ctx, span := l.span(ctx, "Restock", key)
	defer span.End()

	if in.Quantity <= 0 {
		return nil, apperror.NewValidation("restock quantity must be positive").WithDetail("quantity", in.Quantity)
	}
	if in.UnitCost.IsNegative() {
		return nil, apperror.NewValidation("restock unit cost must not be negative")
	}
	if in.RestockedAt.IsZero() {
		in.RestockedAt = l.now().UTC()
	}

	var restock *Restock
	err := l.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		unit, err := l.lockOrCreate(ctx, key, nil)
		if err != nil {
			return err
		}

		restock = &Restock{
			ID:          id.New(),
			StockUnitID: unit.ID,
			Quantity:    in.Quantity,
			UnitCost:    in.UnitCost,
			Supplier:    in.Supplier,
			RestockedAt: in.RestockedAt,
			CreatedBy:   in.CreatedBy,
			CreatedAt:   l.now().UTC(),
		}
		if err := l.repo.CreateRestock(ctx, restock); err != nil {
			return fmt.Errorf("create restock: %w", err)
		}

		unit.QuantityAvailable += in.Quantity
		if err := l.save(ctx, unit); err != nil {
			return err
		}
		ref := Reference{ID: restock.ID.String(), Type: RefRestock, Reason: "restock"}
		if in.Supplier != "" {
			ref.Reason = "restock from " + in.Supplier
		}
		if err := l.appendMovement(ctx, unit, MovementIn, in.Quantity, ref); err != nil {
			return err
		}
		l.notify(ctx, unit)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock restocked", "key", key.String(), "quantity", in.Quantity, "supplier", in.Supplier)
	return restock, nil
}

// SetReorderLevel sets the low-stock threshold.
func (l *Ledger) SetReorderLevel(ctx context.Context, key Key, level int) (*StockUnit, error) {
	if level < 0 {
		return nil, apperror.NewValidation("reorder level must not be negative").WithDetail("level", level)
	}

	var unit *StockUnit
	err := l.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		unit, err = l.lockOrCreate(ctx, key, nil)
		if err != nil {
			return err
		}
		unit.ReorderLevel = level
		return l.save(ctx, unit)
	})
	return unit, err
}

// GetAvailableQuantity returns sellable stock. Before the unit exists the
// catalog's raw stock figure is reported.
func (l *Ledger) GetAvailableQuantity(ctx context.Context, key Key) (int, error) {
	unit, err := l.repo.Get(ctx, key)
	if err == nil {
		return unit.Sellable(), nil
	}
	if !apperror.IsNotFound(err) {
		return 0, fmt.Errorf("get stock unit %s: %w", key, err)
	}
	return l.catalogStock(ctx, key)
}

// GetStockUnit reads a unit without creating it.
func (l *Ledger) GetStockUnit(ctx context.Context, key Key) (*StockUnit, error) {
	return l.repo.Get(ctx, key)
}

// ListMovements returns movement history, newest first.
func (l *Ledger) ListMovements(ctx context.Context, key Key, filter MovementFilter) ([]Movement, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, apperror.NewValidation("unknown movement type").WithDetail("type", *filter.Type)
	}
	return l.repo.ListMovements(ctx, key, filter)
}

// LowStockForVendor lists the vendor's units at or below their reorder level.
func (l *Ledger) LowStockForVendor(ctx context.Context, vendorID id.ID) ([]StockUnit, error) {
	return l.repo.LowStockForVendor(ctx, vendorID)
}

// AuthorizeManage checks that actor may adjust or restock the product behind key.
func (l *Ledger) AuthorizeManage(ctx context.Context, actor security.Actor, key Key) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.IsVendor() {
		return apperror.NewForbidden("only admins and vendors manage stock")
	}
	p, err := l.catalog.FindProductByID(ctx, key.ProductID)
	if err != nil {
		return err
	}
	if p.VendorID != actor.ID {
		return apperror.NewForbidden(fmt.Sprintf("product %s belongs to another vendor", p.Title))
	}
	return nil
}

func (l *Ledger) lockOrCreate(ctx context.Context, key Key, initial *int) (*StockUnit, error) {
	unit, err := l.repo.GetForUpdate(ctx, key)
	if err == nil {
		return unit, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, fmt.Errorf("lock stock unit %s: %w", key, err)
	}

	start := 0
	if initial != nil {
		start = *initial
	} else {
		start, err = l.catalogStock(ctx, key)
		if err != nil {
			return nil, err
		}
	}
	if start < 0 {
		return nil, apperror.NewValidation("initial stock must not be negative").WithDetail("initial", start)
	}

	unit, err = l.repo.FindOrCreateForUpdate(ctx, key, start)
	if err != nil {
		return nil, fmt.Errorf("create stock unit %s: %w", key, err)
	}
	return unit, nil
}

func (l *Ledger) catalogStock(ctx context.Context, key Key) (int, error) {
	p, err := l.catalog.FindProductByID(ctx, key.ProductID)
	if err != nil {
		return 0, err
	}
	if key.VariantID == nil {
		return p.InitialStock, nil
	}
	v, ok := p.Variant(*key.VariantID)
	if !ok {
		return 0, apperror.NewNotFound("product variant", key.VariantID.String())
	}
	return v.Stock, nil
}

func (l *Ledger) save(ctx context.Context, unit *StockUnit) error {
	if unit.QuantityReserved < 0 || unit.QuantityReserved > unit.QuantityAvailable {
		return apperror.NewInternal(fmt.Errorf("stock unit %s would break reserved<=available (%d/%d)",
			unit.Key(), unit.QuantityReserved, unit.QuantityAvailable))
	}
	unit.UpdatedAt = l.now().UTC()
	if err := l.repo.Update(ctx, unit); err != nil {
		return fmt.Errorf("update stock unit %s: %w", unit.Key(), err)
	}
	return nil
}

func (l *Ledger) appendMovement(ctx context.Context, unit *StockUnit, t MovementType, qty int, ref Reference) error {
	m := &Movement{
		ID:            id.New(),
		StockUnitID:   unit.ID,
		ProductID:     unit.ProductID,
		VariantID:     unit.VariantID,
		Type:          t,
		Quantity:      qty,
		BalanceAfter:  unit.QuantityAvailable,
		Reason:        ref.Reason,
		ReferenceID:   ref.ID,
		ReferenceType: ref.Type,
		CreatedAt:     l.now().UTC(),
	}
	if err := l.repo.AppendMovement(ctx, m); err != nil {
		return fmt.Errorf("append %s movement: %w", t, err)
	}
	return nil
}

// notify queues a broadcast for after commit.
func (l *Ledger) notify(ctx context.Context, unit *StockUnit) {
	n := NotificationFor(unit, l.now().UTC())
	tx.AfterCommit(ctx, func(ctx context.Context) {
		l.broadcaster.Publish(ctx, n)
	})
}

func (l *Ledger) insufficient(ctx context.Context, key Key, requested, available int) error {
	name := key.ProductID.String()
	if p, err := l.catalog.FindProductByID(ctx, key.ProductID); err == nil {
		name = p.Title
	}
	return apperror.NewInsufficientStock(name, requested, available).
		WithDetail("stock_key", key.String())
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
