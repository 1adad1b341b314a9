// Package outbox defines domain events written to the transactional outbox.
package outbox

import (
	"context"
	"time"

	"marketplace/internal/core/id"
)

// Event types emitted by the workflows.
const (
	EventOrderCreated           = "order.created"
	EventOrderPaid              = "order.paid"
	EventOrderCancelled         = "order.cancelled"
	EventOrderStatusChanged     = "order.status_changed"
	EventOrderItemStatusChanged = "order.item_status_changed"
	EventRefundRequested        = "refund.requested"
	EventReturnCreated          = "return.created"
	EventReturnReviewed         = "return.reviewed"
	EventReturnStatusChanged    = "return.status_changed"
	EventStockDeducted          = "stock.deducted"
	EventStockRestored          = "stock.restored"
)

// Event is a domain event to be published via the outbox.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// Publisher writes events inside the caller's transaction.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Status of an outbox message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// MaxRetries after which a message is parked as failed.
const MaxRetries = 5

// Message is a stored outbox row.
type Message struct {
	ID            id.ID      `db:"id"`
	AggregateType string     `db:"aggregate_type"`
	AggregateID   id.ID      `db:"aggregate_id"`
	EventType     string     `db:"event_type"`
	Payload       []byte     `db:"payload"`
	Status        Status     `db:"status"`
	RetryCount    int        `db:"retry_count"`
	LastError     *string    `db:"last_error"`
	NextRetryAt   *time.Time `db:"next_retry_at"`
	CreatedAt     time.Time  `db:"created_at"`
	PublishedAt   *time.Time `db:"published_at"`
}

// Handler delivers a message to a broker.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Relay drains pending messages through a Handler.
type Relay interface {
	ProcessBatch(ctx context.Context) (int, error)
}

// NextRetry is the linear backoff applied after a failed delivery.
func NextRetry(now time.Time, retryCount int) time.Time {
	return now.Add(time.Duration(retryCount+1) * time.Minute)
}
