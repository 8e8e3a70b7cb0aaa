package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/soko-labs/soko-checkout/internal/domain/order"
	"github.com/soko-labs/soko-checkout/internal/domain/outbox"
)

// Envelope is the wire format for checkout events. Partitioning by order id
// keeps per-order event ordering.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

type IDGenerator interface {
	NewID() string
}

// EventPublisher bridges the in-process bus to kafka: subscribed as a bus
// handler, it wraps each checkout event in an envelope and hands it to the
// async producer.
type EventPublisher struct {
	producer *Producer
	ids      IDGenerator
	service  string
}

func NewEventPublisher(producer *Producer, ids IDGenerator, service string) *EventPublisher {
	return &EventPublisher{producer: producer, ids: ids, service: service}
}

// Handle implements outbox.Handler.
func (p *EventPublisher) Handle(ctx context.Context, e outbox.Event) error {
	_ = ctx

	correlationID := correlationFor(e)
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal %s: %w", e.EventName(), err)
	}
	env := Envelope{
		EventID:       p.ids.NewID(),
		EventType:     e.EventName(),
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.service,
		CorrelationID: correlationID,
		Payload:       payload,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal envelope: %w", err)
	}

	p.producer.Publish([]byte(correlationID), value,
		kafkago.Header{Key: "x-event-type", Value: []byte(e.EventName())},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}

func correlationFor(e outbox.Event) string {
	switch ev := e.(type) {
	case order.CheckoutConfirmedEvent:
		return ev.OrderID
	case order.CheckoutTimedOutEvent:
		return ev.OrderID
	case order.ReconciliationGapEvent:
		return ev.OrderID
	default:
		return e.EventName()
	}
}
