package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"lovedev.org/internal/obs"
)

// KafkaPublisher writes events as JSON messages keyed by user id, one writer
// per topic so partitioning stays per-user within each stream.
type KafkaPublisher struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaPublisher connects lazily; writers are created on first publish to
// each topic.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

func (p *KafkaPublisher) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	p.writers[topic] = w
	return w
}

// Publish delivers one event. Callers treat failures as non-fatal; the bus
// is at-least-once, not exactly-once.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	topic := Topic(ev.EventType)
	if topic == "" {
		return fmt.Errorf("events: unknown event type %q", ev.EventType)
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", ev.EventType, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.UserID),
		Value: value,
	}
	if err := p.writer(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: publish %s to %s: %w", ev.EventType, topic, err)
	}
	return nil
}

// Close flushes and closes every topic writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("events: close writer for %s: %w", topic, err)
		}
	}
	p.writers = make(map[string]*kafka.Writer)
	return firstErr
}

// LogPublisher emits events as log lines. Used when no broker is configured,
// in development and in tests.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev Event) error {
	obs.Log(map[string]any{
		"level":    "info",
		"msg":      "event published",
		"event_id": ev.EventID,
		"type":     ev.EventType,
		"topic":    Topic(ev.EventType),
		"user_id":  ev.UserID,
	})
	return nil
}

func (LogPublisher) Close() error { return nil }
