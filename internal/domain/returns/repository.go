package returns

import (
	"context"

	"marketplace/internal/core/id"
	"marketplace/internal/core/security"
	"marketplace/internal/domain/inventory"
	"marketplace/internal/domain/orders"
)

// Repository persists returns and their items.
type Repository interface {
	// CreateReturn inserts the return and its items.
	CreateReturn(ctx context.Context, r *Return) error
	GetReturn(ctx context.Context, returnID id.ID) (*Return, error)
	// GetReturnForUpdate loads and row-locks a return with its items.
	GetReturnForUpdate(ctx context.Context, returnID id.ID) (*Return, error)
	FindItem(ctx context.Context, itemID id.ID) (*ReturnItem, error)
	UpdateReturn(ctx context.Context, r *Return) error
	UpdateItem(ctx context.Context, it *ReturnItem) error
	// HasActiveReturnForItem reports an item on a return that is neither cancelled nor rejected.
	HasActiveReturnForItem(ctx context.Context, orderItemID id.ID) (bool, error)
	ListByOrder(ctx context.Context, orderID id.ID) ([]Return, error)
}

// OrderStore is the order persistence the return workflow needs.
type OrderStore interface {
	GetOrder(ctx context.Context, orderID id.ID) (*orders.Order, error)
	GetOrderForUpdate(ctx context.Context, orderID id.ID) (*orders.Order, error)
	UpdateOrder(ctx context.Context, o *orders.Order) error
	UpdateItem(ctx context.Context, it *orders.OrderItem) error
}

// OrderWorkflow is the order-side behaviour returns trigger.
type OrderWorkflow interface {
	RecomputeOrder(ctx context.Context, order *orders.Order, actor security.Actor) error
	EnqueueRefund(ctx context.Context, r *orders.RefundRequest) error
}

// Restocker puts returned goods back on hand, and takes them off again when
// a received return is withdrawn.
type Restocker interface {
	Refund(ctx context.Context, key inventory.Key, qty int, ref inventory.Reference) error
	Adjust(ctx context.Context, key inventory.Key, delta int, ref inventory.Reference) (*inventory.StockUnit, error)
}
