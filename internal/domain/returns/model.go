// Package returns handles post-delivery returns: validation against delivered
// orders, review, the return state machine, restocking and refund amounts.
package returns

import (
	"time"

	"marketplace/internal/core/id"
	"marketplace/internal/core/types"
)

// Return groups the lines a customer sends back from one order.
type Return struct {
	ID              id.ID        `db:"id" json:"id"`
	ReturnNumber    string       `db:"return_number" json:"returnNumber"`
	OrderID         id.ID        `db:"order_id" json:"orderId"`
	UserID          id.ID        `db:"user_id" json:"userId"`
	Reason          string       `db:"reason" json:"reason"`
	Status          Status       `db:"status" json:"status"`
	RefundAmount    types.Money  `db:"refund_amount" json:"refundAmount"`
	RefundStatus    RefundStatus `db:"refund_status" json:"refundStatus"`
	ReviewedBy      *id.ID       `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time   `db:"reviewed_at" json:"reviewedAt,omitempty"`
	RejectionReason string       `db:"rejection_reason" json:"rejectionReason,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updatedAt"`

	Items []ReturnItem `db:"-" json:"items"`
}

// ReturnItem is one returned order line.
type ReturnItem struct {
	ID              id.ID      `db:"id" json:"id"`
	ReturnID        id.ID      `db:"return_id" json:"returnId"`
	OrderItemID     id.ID      `db:"order_item_id" json:"orderItemId"`
	Quantity        int        `db:"quantity" json:"quantity"`
	Reason          string     `db:"reason" json:"reason"`
	Status          ItemStatus `db:"status" json:"status"`
	ReviewedBy      *id.ID     `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time `db:"reviewed_at" json:"reviewedAt,omitempty"`
	RejectionReason string     `db:"rejection_reason" json:"rejectionReason,omitempty"`
	RestockedAt     *time.Time `db:"restocked_at" json:"restockedAt,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

// Item finds a return line by id.
func (r *Return) Item(itemID id.ID) (*ReturnItem, bool) {
	for i := range r.Items {
		if r.Items[i].ID == itemID {
			return &r.Items[i], true
		}
	}
	return nil, false
}

// Active reports whether the return still holds its order items.
func (r *Return) Active() bool {
	return r.Status != StatusCancelled && r.Status != StatusRejected
}

// RollupStatus returns the common status of all active items, if they agree.
// With no active item left the return is rejected if any item was, else cancelled.
func (r *Return) RollupStatus() (Status, bool) {
	var common ItemStatus
	active, rejected := 0, false
	for _, it := range r.Items {
		if it.Status == ItemRejected {
			rejected = true
		}
		if !it.Status.Active() {
			continue
		}
		if active > 0 && it.Status != common {
			return "", false
		}
		common = it.Status
		active++
	}
	if active == 0 {
		if rejected {
			return StatusRejected, true
		}
		return StatusCancelled, true
	}
	return Status(common), true
}
