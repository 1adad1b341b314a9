package returns

// Status of a return.
type Status string

const (
	StatusRequested     Status = "REQUESTED"
	StatusApproved      Status = "APPROVED"
	StatusRejected      Status = "REJECTED"
	StatusInTransit     Status = "IN_TRANSIT"
	StatusReceived      Status = "RECEIVED"
	StatusRefundPending Status = "REFUND_PENDING"
	StatusRefunded      Status = "REFUNDED"
	StatusCancelled     Status = "CANCELLED"
)

// AllStatuses lists every return status.
var AllStatuses = []Status{
	StatusRequested, StatusApproved, StatusRejected, StatusInTransit,
	StatusReceived, StatusRefundPending, StatusRefunded, StatusCancelled,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

var transitions = map[Status][]Status{
	StatusRequested:     {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:      {StatusInTransit, StatusCancelled},
	StatusInTransit:     {StatusReceived, StatusCancelled},
	StatusReceived:      {StatusRefundPending, StatusCancelled},
	StatusRefundPending: {StatusRefunded},
	StatusRejected:      {},
	StatusRefunded:      {},
	StatusCancelled:     {},
}

// TransitionAllowed is the return transition table.
func TransitionAllowed(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ItemStatus of a single returned line. It follows the same table as the return.
type ItemStatus string

const (
	ItemRequested     ItemStatus = "REQUESTED"
	ItemApproved      ItemStatus = "APPROVED"
	ItemRejected      ItemStatus = "REJECTED"
	ItemInTransit     ItemStatus = "IN_TRANSIT"
	ItemReceived      ItemStatus = "RECEIVED"
	ItemRefundPending ItemStatus = "REFUND_PENDING"
	ItemRefunded      ItemStatus = "REFUNDED"
	ItemCancelled     ItemStatus = "CANCELLED"
)

// AllItemStatuses lists every return item status.
var AllItemStatuses = []ItemStatus{
	ItemRequested, ItemApproved, ItemRejected, ItemInTransit,
	ItemReceived, ItemRefundPending, ItemRefunded, ItemCancelled,
}

func (s ItemStatus) Valid() bool { return Status(s).Valid() }

// Active items still count toward the return.
func (s ItemStatus) Active() bool {
	return s != ItemCancelled && s != ItemRejected
}

// ItemTransitionAllowed is the return item transition table.
func ItemTransitionAllowed(from, to ItemStatus) bool {
	return TransitionAllowed(Status(from), Status(to))
}

// RefundStatus of the money owed for a return.
type RefundStatus string

const (
	RefundNone      RefundStatus = "NONE"
	RefundPending   RefundStatus = "PENDING"
	RefundCompleted RefundStatus = "COMPLETED"
)

// Decision of a return review.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)
