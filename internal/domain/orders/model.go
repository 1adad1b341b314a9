// Package orders turns carts into priced orders and drives the order and
// order-item state machines, stock holds, payment confirmation and refunds.
package orders

import (
	"time"

	"marketplace/internal/core/id"
	"marketplace/internal/core/types"
)

// Address is the shipping destination captured at checkout.
type Address struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// RequestStatus of a customer request awaiting review.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// CancellationRequest is a customer's request to cancel a paid or in-flight order.
type CancellationRequest struct {
	Status          RequestStatus `json:"status"`
	Reason          string        `json:"reason"`
	RequestedAt     time.Time     `json:"requestedAt"`
	ReviewedBy      *id.ID        `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time    `json:"reviewedAt,omitempty"`
	RejectionReason string        `json:"rejectionReason,omitempty"`
}

// Order is created once per checkout and never deleted.
type Order struct {
	ID                  id.ID                `db:"id" json:"id"`
	UserID              id.ID                `db:"user_id" json:"userId"`
	OrderNumber         string               `db:"order_number" json:"orderNumber"`
	Status              Status               `db:"status" json:"status"`
	PaymentStatus       PaymentStatus        `db:"payment_status" json:"paymentStatus"`
	TotalAmount         types.Money          `db:"total_amount" json:"totalAmount"`
	ShippingAddress     Address              `db:"shipping_address" json:"shippingAddress"`
	CancellationRequest *CancellationRequest `db:"cancellation_request" json:"cancellationRequest,omitempty"`
	CreatedAt           time.Time            `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time            `db:"updated_at" json:"updatedAt"`

	Items []OrderItem `db:"-" json:"items"`
}

// Rejection is stamped on an item when it leaves the active set.
type Rejection struct {
	Reason     string    `json:"reason"`
	RejectedBy *id.ID    `json:"rejectedBy,omitempty"`
	RejectedAt time.Time `json:"rejectedAt"`
}

// OrderItem is a priced line. UnitPrice and TotalPrice are frozen at checkout.
type OrderItem struct {
	ID           id.ID       `db:"id" json:"id"`
	OrderID      id.ID       `db:"order_id" json:"orderId"`
	ProductID    id.ID       `db:"product_id" json:"productId"`
	VariantID    *id.ID      `db:"product_variant_id" json:"productVariantId,omitempty"`
	VendorID     id.ID       `db:"vendor_id" json:"vendorId"`
	ProductTitle string      `db:"product_title" json:"productTitle"`
	Quantity     int         `db:"quantity" json:"quantity"`
	UnitPrice    types.Money `db:"unit_price" json:"unitPrice"`
	TotalPrice   types.Money `db:"total_price" json:"totalPrice"`
	Status       ItemStatus  `db:"status" json:"status"`
	Rejection    *Rejection  `db:"rejection" json:"rejection,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updatedAt"`
}

// Item finds a line by id.
func (o *Order) Item(itemID id.ID) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// ItemStatuses returns the status of every line in order.
func (o *Order) ItemStatuses() []ItemStatus {
	out := make([]ItemStatus, len(o.Items))
	for i, it := range o.Items {
		out[i] = it.Status
	}
	return out
}

// RecalculateTotal sums TotalPrice over active items.
func (o *Order) RecalculateTotal() {
	total := types.Zero()
	for _, it := range o.Items {
		if it.Status.Active() {
			total = total.Add(it.TotalPrice)
		}
	}
	o.TotalAmount = total
}

// HasActiveItems reports whether any line is still active.
func (o *Order) HasActiveItems() bool {
	for _, it := range o.Items {
		if it.Status.Active() {
			return true
		}
	}
	return false
}

// ReturnInProgress is derived from the lines; it is never stored.
func (o *Order) ReturnInProgress() bool {
	for _, it := range o.Items {
		if it.Status.InReturn() {
			return true
		}
	}
	return false
}

// HasVendor reports whether vendorID sells any line of the order.
func (o *Order) HasVendor(vendorID id.ID) bool {
	for _, it := range o.Items {
		if it.VendorID == vendorID {
			return true
		}
	}
	return false
}

// PaymentContextStatus tracks a payment attempt.
type PaymentContextStatus string

const (
	PaymentContextPending   PaymentContextStatus = "PENDING"
	PaymentContextCompleted PaymentContextStatus = "COMPLETED"
	PaymentContextFailed    PaymentContextStatus = "FAILED"
)

// PaymentContext maps a gateway reference to the order awaiting payment.
// Rows expire; the reaper cancels orders whose context expired unpaid.
type PaymentContext struct {
	Reference string               `db:"reference" json:"reference"`
	OrderID   id.ID                `db:"order_id" json:"orderId"`
	UserID    id.ID                `db:"user_id" json:"userId"`
	Amount    types.Money          `db:"amount" json:"amount"`
	Status    PaymentContextStatus `db:"status" json:"status"`
	ExpiresAt time.Time            `db:"expires_at" json:"expiresAt"`
	CreatedAt time.Time            `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time            `db:"updated_at" json:"updatedAt"`
}

// Expired reports whether the context is past its deadline.
func (p *PaymentContext) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// RefundKind classifies a refund obligation.
type RefundKind string

const (
	RefundPartial RefundKind = "PARTIAL"
	RefundFull    RefundKind = "FULL"
	RefundReturn  RefundKind = "RETURN"
)

// RefundRequestStatus of a queued refund.
type RefundRequestStatus string

const (
	RefundRequestPending RefundRequestStatus = "PENDING"
	// RefundRequestSubmitting is held while the provider call is in flight.
	// A request left here has an unknown outcome and is never resubmitted
	// automatically.
	RefundRequestSubmitting RefundRequestStatus = "SUBMITTING"
	RefundRequestSubmitted  RefundRequestStatus = "SUBMITTED"
	RefundRequestFailed     RefundRequestStatus = "FAILED"
)

// MaxRefundAttempts before a request is parked as FAILED for manual handling.
const MaxRefundAttempts = 5

// RefundRequest is a queued obligation to return money to the customer.
type RefundRequest struct {
	ID          id.ID               `db:"id" json:"id"`
	OrderID     id.ID               `db:"order_id" json:"orderId"`
	OrderItemID *id.ID              `db:"order_item_id" json:"orderItemId,omitempty"`
	ReturnID    *id.ID              `db:"return_id" json:"returnId,omitempty"`
	Amount      types.Money         `db:"amount" json:"amount"`
	Kind        RefundKind          `db:"kind" json:"kind"`
	Status      RefundRequestStatus `db:"status" json:"status"`
	ProviderRef *string             `db:"provider_ref" json:"providerRef,omitempty"`
	Attempts    int                 `db:"attempts" json:"attempts"`
	LastError   *string             `db:"last_error" json:"lastError,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updatedAt"`
}
