// Package audit records who moved which entity between which statuses.
package audit

import (
	"context"
	"time"

	"marketplace/internal/core/id"
	"marketplace/internal/core/security"
)

// Action is the kind of audited change.
type Action string

const (
	ActionCreate       Action = "create"
	ActionStatusChange Action = "status_change"
	ActionReview       Action = "review"
	ActionCancel       Action = "cancel"
	ActionPayment      Action = "payment"
)

// Entry is one audit record. Changes holds before/after values keyed by field.
type Entry struct {
	ID         id.ID          `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   id.ID          `json:"entityId"`
	Action     Action         `json:"action"`
	ActorID    *id.ID         `json:"actorId,omitempty"`
	ActorRole  string         `json:"actorRole,omitempty"`
	Changes    map[string]any `json:"changes,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Change is a before/after pair for Entry.Changes.
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// NewEntry fills actor fields from the acting identity. System actors have no id.
func NewEntry(entityType string, entityID id.ID, action Action, actor security.Actor) Entry {
	e := Entry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorRole:  string(actor.Role),
		Changes:    map[string]any{},
	}
	if !id.IsNil(actor.ID) {
		e.ActorID = id.Ptr(actor.ID)
	}
	return e
}

// WithChange records field moving from -> to.
func (e Entry) WithChange(field string, from, to any) Entry {
	e.Changes[field] = Change{From: from, To: to}
	return e
}

// Recorder persists entries inside the caller's transaction.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	History(ctx context.Context, entityType string, entityID id.ID) ([]Entry, error)
}
