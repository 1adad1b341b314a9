package orders

import (
	"context"
	"time"

	"marketplace/internal/core/id"
	"marketplace/internal/core/types"
	"marketplace/internal/domain/inventory"
)

// ListFilter pages order listings.
type ListFilter struct {
	UserID *id.ID
	Status *Status
	Limit  int
	Offset int
}

// Repository persists orders and their items.
type Repository interface {
	// CreateOrder inserts the order shell. Returns a Conflict error when the
	// order number is already taken; the transaction stays usable.
	CreateOrder(ctx context.Context, o *Order) error
	CreateItems(ctx context.Context, items []OrderItem) error

	// GetOrder loads an order with its items.
	GetOrder(ctx context.Context, orderID id.ID) (*Order, error)

	// GetOrderForUpdate loads and row-locks an order with its items.
	GetOrderForUpdate(ctx context.Context, orderID id.ID) (*Order, error)

	// FindItem loads a single line without locking.
	FindItem(ctx context.Context, itemID id.ID) (*OrderItem, error)

	UpdateOrder(ctx context.Context, o *Order) error
	UpdateItem(ctx context.Context, it *OrderItem) error

	ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error)
}

// PaymentContextStore is the durable replacement for an in-memory payment map.
type PaymentContextStore interface {
	CreatePaymentContext(ctx context.Context, pc *PaymentContext) error
	GetPaymentContextForUpdate(ctx context.Context, reference string) (*PaymentContext, error)
	// PendingPaymentContext returns the newest PENDING context of an order, NotFound if none.
	PendingPaymentContext(ctx context.Context, orderID id.ID) (*PaymentContext, error)
	UpdatePaymentContext(ctx context.Context, pc *PaymentContext) error
	DeletePaymentContext(ctx context.Context, reference string) error
	// ListExpiredPaymentContexts returns PENDING contexts with expires_at <= now.
	ListExpiredPaymentContexts(ctx context.Context, now time.Time, limit int) ([]PaymentContext, error)
	// PurgeSettledPaymentContexts deletes COMPLETED/FAILED contexts updated before cutoff.
	PurgeSettledPaymentContexts(ctx context.Context, cutoff time.Time) (int64, error)
}

// RefundQueue persists refund obligations.
type RefundQueue interface {
	EnqueueRefund(ctx context.Context, r *RefundRequest) error
	// ClaimPendingRefunds returns PENDING requests, locked for the caller's transaction.
	ClaimPendingRefunds(ctx context.Context, limit int) ([]RefundRequest, error)
	UpdateRefund(ctx context.Context, r *RefundRequest) error
	ListRefundsForOrder(ctx context.Context, orderID id.ID) ([]RefundRequest, error)
}

// InventoryLedger is the part of the stock ledger orders use.
type InventoryLedger interface {
	Reserve(ctx context.Context, key inventory.Key, qty int) error
	Release(ctx context.Context, key inventory.Key, qty int) error
	Deduct(ctx context.Context, key inventory.Key, qty int, ref inventory.Reference) error
	Refund(ctx context.Context, key inventory.Key, qty int, ref inventory.Reference) error
}

// PaymentRequest is sent to the gateway to start a payment.
type PaymentRequest struct {
	Reference   string
	OrderID     id.ID
	OrderNumber string
	Amount      types.Money
}

// Gateway starts payments on the external provider.
type Gateway interface {
	// Initiate returns the URL the customer is redirected to.
	Initiate(ctx context.Context, req PaymentRequest) (string, error)
}

// RefundProvider executes refunds on the external provider.
type RefundProvider interface {
	Refund(ctx context.Context, req RefundRequest) (providerRef string, err error)
}

// Deduper short-circuits replayed gateway notifications.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}
