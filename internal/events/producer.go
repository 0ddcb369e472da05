// Package events publishes conversation lifecycle events to Kafka so
// downstream consumers (analytics, integrations) can react without coupling
// to the engine's database. Publishing is best-effort: failures are logged
// and never surface to the API caller, and an unconfigured producer is a
// no-op.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Event names emitted by the engine.
const (
	TicketCreated  = "ticket.created"
	TicketUpdated  = "ticket.updated"
	TicketAssigned = "ticket.assigned"
	ChatStarted    = "chat.started"
	ChatEnded      = "chat.ended"
	ChatAbandoned  = "chat.abandoned"
	MessageSent    = "message.sent"
)

// Producer defines the event-publishing contract consumed by services.
// Implementations must never block the request path for longer than their
// internal batching timeout.
type Producer interface {
	Emit(ctx context.Context, event, threadID string, payload map[string]any)
	Close() error
}

// KafkaProducer writes conversation events to a Kafka topic, keyed by thread
// id so all events of one conversation land in the same partition.
type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaProducer creates a producer. If brokers or topic is empty the
// returned producer is a no-op.
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	if len(brokers) == 0 || topic == "" {
		return &KafkaProducer{}
	}
	return &KafkaProducer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Emit sends one event. Errors are logged and swallowed; the engine never
// retries and never fails a mutation because the broker is unavailable.
func (p *KafkaProducer) Emit(ctx context.Context, event, threadID string, payload map[string]any) {
	if p.writer == nil {
		return
	}
	msg := map[string]any{
		"event":     event,
		"thread_id": threadID,
		"at":        time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("events: marshal")
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(threadID),
		Value: body,
	}); err != nil {
		log.Warn().Err(err).Str("event", event).Str("thread_id", threadID).Msg("events: write")
	}
}

// Close flushes and closes the underlying writer.
func (p *KafkaProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers splits a broker list like "host1:9092,host2:9092".
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
