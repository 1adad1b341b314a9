package memory

import (
	"context"
	"slices"
	"time"

	"marketplace/internal/core/id"
	"marketplace/internal/core/outbox"
	"marketplace/internal/domain/audit"
)

var (
	_ outbox.Publisher = (*OutboxRepo)(nil)
	_ audit.Recorder   = (*AuditRepo)(nil)
)

// Event is a published outbox event with its commit-time stamp.
type Event struct {
	outbox.Event
	ID        id.ID
	CreatedAt time.Time
}

// OutboxRepo keeps published events in memory. They are rolled back with
// their transaction like the postgres outbox table.
type OutboxRepo struct{ s *Store }

func (r *OutboxRepo) Publish(ctx context.Context, e outbox.Event) error {
	return r.s.view(ctx, func(st *state) error {
		st.events = append(st.events, Event{Event: e, ID: id.New(), CreatedAt: nowUTC()})
		return nil
	})
}

// Events returns published events, optionally narrowed to the given types.
func (r *OutboxRepo) Events(ctx context.Context, types ...string) []Event {
	var out []Event
	_ = r.s.view(ctx, func(st *state) error {
		for _, e := range st.events {
			if len(types) == 0 || slices.Contains(types, e.EventType) {
				out = append(out, e)
			}
		}
		return nil
	})
	return out
}

type AuditRepo struct{ s *Store }

func (r *AuditRepo) Record(ctx context.Context, e audit.Entry) error {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = nowUTC()
	}
	return r.s.view(ctx, func(st *state) error {
		st.audit = append(st.audit, e)
		return nil
	})
}

func (r *AuditRepo) History(ctx context.Context, entityType string, entityID id.ID) ([]audit.Entry, error) {
	var out []audit.Entry
	err := r.s.view(ctx, func(st *state) error {
		for _, e := range st.audit {
			if e.EntityType == entityType && e.EntityID == entityID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func nowUTC() time.Time { return time.Now().UTC() }
