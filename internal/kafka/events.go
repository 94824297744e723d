package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

type publisher interface {
	Publish(key, value []byte, headers ...kafka.Header)
}

// EventPublisher wraps lifecycle events in the v1 envelope and hands them to a
// Producer keyed by order id.
type EventPublisher struct {
	Producer publisher
	Service  string
	Now      func() time.Time
}

func (p *EventPublisher) Publish(ctx context.Context, ev orders.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", ev.Type, err)
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.Type,
		EventVersion:  1,
		OccurredAt:    now().UTC(),
		Producer:      p.Service,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: ev.OrderID,
		Payload:       payload,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	p.Producer.Publish(orders.PartitionKey(ev.OrderID), value,
		kafka.Header{Key: "x-event-type", Value: []byte(ev.Type)},
		kafka.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}
