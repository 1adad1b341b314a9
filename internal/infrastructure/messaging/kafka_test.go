package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/core/id"
	"marketplace/internal/core/outbox"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaHandler_Handle(t *testing.T) {
	w := &recordingWriter{}
	h := NewKafkaHandler(w)
	msg := &outbox.Message{
		ID:            id.New(),
		AggregateType: "order",
		AggregateID:   id.New(),
		EventType:     outbox.EventOrderPaid,
		Payload:       []byte(`{"orderNumber":"ORD-1"}`),
		CreatedAt:     time.Now().UTC(),
	}

	require.NoError(t, h.Handle(context.Background(), msg))
	require.Len(t, w.msgs, 1)

	got := w.msgs[0]
	assert.Equal(t, msg.AggregateID.String(), string(got.Key))
	assert.JSONEq(t, `{"orderNumber":"ORD-1"}`, string(got.Value))
	headers := map[string]string{}
	for _, hd := range got.Headers {
		headers[hd.Key] = string(hd.Value)
	}
	assert.Equal(t, outbox.EventOrderPaid, headers["event_type"])
	assert.Equal(t, "order", headers["aggregate_type"])
	assert.Equal(t, msg.ID.String(), headers["event_id"])
}

func TestKafkaHandler_PropagatesWriteError(t *testing.T) {
	h := NewKafkaHandler(&recordingWriter{err: errors.New("broker down")})
	err := h.Handle(context.Background(), &outbox.Message{EventType: outbox.EventOrderCreated})
	assert.ErrorContains(t, err, "broker down")
}
