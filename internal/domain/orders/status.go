package orders

// Status of an order. Normally derived from its items.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusConfirmed        Status = "CONFIRMED"
	StatusProcessing       Status = "PROCESSING"
	StatusReadyToShip      Status = "READY_TO_SHIP"
	StatusShipped          Status = "SHIPPED"
	StatusDelivered        Status = "DELIVERED"
	StatusReturnInProgress Status = "RETURN_IN_PROGRESS"
	StatusCancelled        Status = "CANCELLED"
	StatusRefunded         Status = "REFUNDED"
)

// AllStatuses lists every order status.
var AllStatuses = []Status{
	StatusPending, StatusConfirmed, StatusProcessing, StatusReadyToShip, StatusShipped,
	StatusDelivered, StatusReturnInProgress, StatusCancelled, StatusRefunded,
}

func (s Status) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

var orderTransitions = map[Status][]Status{
	StatusPending:          {StatusConfirmed, StatusCancelled},
	StatusConfirmed:        {StatusProcessing, StatusCancelled},
	StatusProcessing:       {StatusReadyToShip, StatusCancelled},
	StatusReadyToShip:      {StatusShipped, StatusCancelled},
	StatusShipped:          {StatusDelivered},
	StatusDelivered:        {StatusReturnInProgress},
	StatusReturnInProgress: {StatusDelivered, StatusRefunded},
	StatusCancelled:        {},
	StatusRefunded:         {},
}

// OrderTransitionAllowed is the explicit order-level transition table.
func OrderTransitionAllowed(from, to Status) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ItemStatus of a single order line.
type ItemStatus string

const (
	ItemPending         ItemStatus = "PENDING"
	ItemAccepted        ItemStatus = "ACCEPTED"
	ItemRejected        ItemStatus = "REJECTED"
	ItemProcessing      ItemStatus = "PROCESSING"
	ItemPicked          ItemStatus = "PICKED"
	ItemPacked          ItemStatus = "PACKED"
	ItemShipped         ItemStatus = "SHIPPED"
	ItemDelivered       ItemStatus = "DELIVERED"
	ItemCancelled       ItemStatus = "CANCELLED"
	ItemReturnRequested ItemStatus = "RETURN_REQUESTED"
	ItemReturnApproved  ItemStatus = "RETURN_APPROVED"
	ItemReturnRejected  ItemStatus = "RETURN_REJECTED"
	ItemReturnInTransit ItemStatus = "RETURN_IN_TRANSIT"
	ItemReturnReceived  ItemStatus = "RETURN_RECEIVED"
	ItemRefunded        ItemStatus = "REFUNDED"
)

// AllItemStatuses lists every item status.
var AllItemStatuses = []ItemStatus{
	ItemPending, ItemAccepted, ItemRejected, ItemProcessing, ItemPicked, ItemPacked,
	ItemShipped, ItemDelivered, ItemCancelled, ItemReturnRequested, ItemReturnApproved,
	ItemReturnRejected, ItemReturnInTransit, ItemReturnReceived, ItemRefunded,
}

func (s ItemStatus) Valid() bool {
	for _, v := range AllItemStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Active items count toward the order total.
func (s ItemStatus) Active() bool {
	return s != ItemCancelled && s != ItemRejected
}

// InReturn reports an open return sub-state.
func (s ItemStatus) InReturn() bool {
	switch s {
	case ItemReturnRequested, ItemReturnApproved, ItemReturnInTransit, ItemReturnReceived:
		return true
	}
	return false
}

// Unshipped lines are still in the warehouse; only these may leave the order.
func (s ItemStatus) Unshipped() bool {
	switch s {
	case ItemPending, ItemAccepted, ItemProcessing, ItemPicked, ItemPacked:
		return true
	}
	return false
}

// deliveredEquivalent: the goods reached the customer and no return is open.
func (s ItemStatus) deliveredEquivalent() bool {
	return s == ItemDelivered || s == ItemReturnRejected || s == ItemRefunded
}

var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending:    {ItemAccepted, ItemRejected, ItemCancelled},
	ItemAccepted:   {ItemProcessing, ItemCancelled},
	ItemProcessing: {ItemPicked, ItemCancelled},
	ItemPicked:     {ItemPacked, ItemCancelled},
	ItemPacked:     {ItemShipped, ItemCancelled},
	ItemShipped:    {ItemDelivered},
	ItemDelivered:  {ItemReturnRequested, ItemReturnApproved, ItemReturnRejected},
}

// itemOverridable reports whether an admin may move a line off the table.
// Terminal lines and lines owned by the return workflow are excluded.
func itemOverridable(from ItemStatus) bool {
	return len(itemTransitions[from]) > 0
}

// ItemTransitionAllowed is the vendor-facing item transition table.
// REJECTED, CANCELLED, RETURN_REJECTED and REFUNDED are terminal.
func ItemTransitionAllowed(from, to ItemStatus) bool {
	for _, s := range itemTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DeriveStatus computes the order status from its item statuses.
// Rules are evaluated in order; the first match wins.
func DeriveStatus(items []ItemStatus) Status {
	if len(items) == 0 {
		return StatusPending
	}

	var active []ItemStatus
	for _, s := range items {
		if s.Active() {
			active = append(active, s)
		}
	}

	if len(active) == 0 {
		return StatusCancelled
	}

	if allOf(active, func(s ItemStatus) bool { return s == ItemRefunded }) {
		return StatusRefunded
	}

	if allOf(active, ItemStatus.deliveredEquivalent) {
		return StatusDelivered
	}

	if allOf(items, func(s ItemStatus) bool {
		switch s {
		case ItemPacked, ItemShipped, ItemDelivered, ItemCancelled, ItemRejected:
			return true
		}
		return false
	}) {
		return StatusReadyToShip
	}

	if anyOf(items, ItemStatus.InReturn) {
		return StatusReturnInProgress
	}

	if anyOf(active, func(s ItemStatus) bool { return s == ItemProcessing || s == ItemPicked }) {
		return StatusProcessing
	}

	if anyOf(active, func(s ItemStatus) bool { return s == ItemAccepted }) {
		return StatusConfirmed
	}

	if allOf(active, func(s ItemStatus) bool { return s == ItemPending }) {
		return StatusPending
	}

	return StatusProcessing
}

func allOf(items []ItemStatus, pred func(ItemStatus) bool) bool {
	for _, s := range items {
		if !pred(s) {
			return false
		}
	}
	return true
}

func anyOf(items []ItemStatus, pred func(ItemStatus) bool) bool {
	for _, s := range items {
		if pred(s) {
			return true
		}
	}
	return false
}

// PaymentStatus of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)
