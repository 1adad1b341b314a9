package inventory

import (
	"context"

	"marketplace/internal/core/id"
)

// Repository persists stock units and their history.
// Methods suffixed ForUpdate must be called inside a transaction; they hold a
// row lock on the unit until commit so mutations per Key are serialized.
type Repository interface {
	// FindOrCreateForUpdate returns the unit for key, inserting it with
	// initial available quantity when absent, and locks it.
	FindOrCreateForUpdate(ctx context.Context, key Key, initial int) (*StockUnit, error)

	// GetForUpdate locks an existing unit. Returns NotFound when absent.
	GetForUpdate(ctx context.Context, key Key) (*StockUnit, error)

	// Get reads a unit without locking. Returns NotFound when absent.
	Get(ctx context.Context, key Key) (*StockUnit, error)

	// Update writes quantities and reorder level.
	Update(ctx context.Context, unit *StockUnit) error

	// AppendMovement inserts an immutable movement row.
	AppendMovement(ctx context.Context, m *Movement) error

	CreateRestock(ctx context.Context, r *Restock) error

	ListMovements(ctx context.Context, key Key, filter MovementFilter) ([]Movement, error)

	// LowStockForVendor returns units of products owned by vendorID
	// with 0 < quantity_available <= reorder_level.
	LowStockForVendor(ctx context.Context, vendorID id.ID) ([]StockUnit, error)
}

// Broadcaster delivers stock notifications to real-time subscribers.
// Publish must not block the caller; failures are the broadcaster's to log.
type Broadcaster interface {
	Publish(ctx context.Context, n Notification)
}

// NopBroadcaster drops notifications.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(context.Context, Notification) {}
