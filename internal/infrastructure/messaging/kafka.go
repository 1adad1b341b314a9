// Package messaging relays outbox messages to Kafka.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"marketplace/internal/core/outbox"
)

// Writer is the part of *kafka.Writer the handler uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaHandler implements outbox.Handler. Messages are keyed by aggregate id
// so every event of one order or return lands on the same partition.
type KafkaHandler struct {
	w Writer
}

var _ outbox.Handler = (*KafkaHandler)(nil)

// NewKafkaWriter builds a synchronous writer; the relay needs the delivery result.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewKafkaHandler(w Writer) *KafkaHandler {
	return &KafkaHandler{w: w}
}

// Handle writes one message with event metadata in headers.
func (h *KafkaHandler) Handle(ctx context.Context, msg *outbox.Message) error {
	if err := h.w.WriteMessages(ctx, toKafka(msg)); err != nil {
		return fmt.Errorf("kafka write %s: %w", msg.EventType, err)
	}
	return nil
}

func (h *KafkaHandler) Close() error {
	return h.w.Close()
}

func toKafka(msg *outbox.Message) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.AggregateID.String()),
		Value: msg.Payload,
		Time:  msg.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(msg.ID.String())},
			{Key: "event_type", Value: []byte(msg.EventType)},
			{Key: "aggregate_type", Value: []byte(msg.AggregateType)},
		},
	}
}

// LogHandler stands in for Kafka when no brokers are configured.
type LogHandler struct {
	Log func(ctx context.Context, msg string, keysAndValues ...any)
}

func (h LogHandler) Handle(ctx context.Context, msg *outbox.Message) error {
	h.Log(ctx, "outbox event", "event_type", msg.EventType, "aggregate_id", msg.AggregateID, "event_id", msg.ID)
	return nil
}
