package orders

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name  string
		items []ItemStatus
		want  Status
	}{
		{"no items", nil, StatusPending},
		{"delivered with cancelled line", []ItemStatus{ItemDelivered, ItemCancelled}, StatusDelivered},
		{"packed with cancelled line", []ItemStatus{ItemPacked, ItemCancelled}, StatusReadyToShip},
		{"pending and accepted", []ItemStatus{ItemPending, ItemAccepted}, StatusConfirmed},
		{"all pending", []ItemStatus{ItemPending, ItemPending}, StatusPending},
		{"all removed", []ItemStatus{ItemRejected, ItemCancelled}, StatusCancelled},
		{"all refunded", []ItemStatus{ItemRefunded, ItemRejected}, StatusRefunded},
		{"refunded and delivered", []ItemStatus{ItemRefunded, ItemDelivered}, StatusDelivered},
		{"return rejected counts as delivered", []ItemStatus{ItemReturnRejected, ItemDelivered}, StatusDelivered},
		{"shipped and delivered", []ItemStatus{ItemShipped, ItemDelivered}, StatusReadyToShip},
		{"open return", []ItemStatus{ItemReturnRequested, ItemDelivered}, StatusReturnInProgress},
		{"return received", []ItemStatus{ItemReturnReceived}, StatusReturnInProgress},
		{"picking", []ItemStatus{ItemPicked, ItemAccepted}, StatusProcessing},
		{"processing with pending", []ItemStatus{ItemProcessing, ItemPending}, StatusProcessing},
		{"packed with pending", []ItemStatus{ItemPacked, ItemPending}, StatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.items))
		})
	}
}

func TestItemTransitionAllowed_Table(t *testing.T) {
	allowed := map[ItemStatus][]ItemStatus{
		ItemPending:    {ItemAccepted, ItemRejected, ItemCancelled},
		ItemAccepted:   {ItemProcessing, ItemCancelled},
		ItemProcessing: {ItemPicked, ItemCancelled},
		ItemPicked:     {ItemPacked, ItemCancelled},
		ItemPacked:     {ItemShipped, ItemCancelled},
		ItemShipped:    {ItemDelivered},
		ItemDelivered:  {ItemReturnRequested, ItemReturnApproved, ItemReturnRejected},
	}

	for _, from := range AllItemStatuses {
		for _, to := range AllItemStatuses {
			want := slices.Contains(allowed[from], to)
			assert.Equal(t, want, ItemTransitionAllowed(from, to), "%s -> %s", from, to)
		}
	}

	for _, terminal := range []ItemStatus{ItemRejected, ItemCancelled, ItemReturnRejected, ItemRefunded} {
		for _, to := range AllItemStatuses {
			assert.False(t, ItemTransitionAllowed(terminal, to), "%s is terminal", terminal)
		}
	}
}

func TestOrderTransitionAllowed_Table(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:          {StatusConfirmed, StatusCancelled},
		StatusConfirmed:        {StatusProcessing, StatusCancelled},
		StatusProcessing:       {StatusReadyToShip, StatusCancelled},
		StatusReadyToShip:      {StatusShipped, StatusCancelled},
		StatusShipped:          {StatusDelivered},
		StatusDelivered:        {StatusReturnInProgress},
		StatusReturnInProgress: {StatusDelivered, StatusRefunded},
	}

	for _, from := range AllStatuses {
		assert.True(t, from.Valid())
		for _, to := range AllStatuses {
			want := slices.Contains(allowed[from], to)
			assert.Equal(t, want, OrderTransitionAllowed(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, Status("LOST").Valid())
}

func TestItemStatus_Predicates(t *testing.T) {
	for _, s := range AllItemStatuses {
		assert.True(t, s.Valid())
		assert.Equal(t, s != ItemCancelled && s != ItemRejected, s.Active(), s)
	}
	assert.False(t, ItemStatus("LOST").Valid())
	assert.True(t, ItemReturnInTransit.InReturn())
	assert.False(t, ItemReturnRejected.InReturn())
}
