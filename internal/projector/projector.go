// Package projector keeps the Redis status cache in step with the order
// lifecycle stream, so status reads rarely reach Postgres.
package projector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

type Projector struct {
	Cache  orders.StatusCache
	Logger *zap.Logger
}

// Handle applies one lifecycle event. Malformed messages are logged and
// acknowledged; only cache errors are returned so the offset is retried.
// Deletes are written as tombstones so that a late event for the same order
// cannot bring it back.
func (p *Projector) Handle(ctx context.Context, m kafka.Message) error {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Warn("skip undecodable event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventVersion != 1 {
		log.Warn("skip unknown event version", zap.String("type", env.EventType), zap.Int("version", env.EventVersion))
		return nil
	}

	var e orders.StatusEntry
	switch env.EventType {
	case orders.EventOrderCreated:
		pl, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			log.Warn("skip bad payload", zap.String("type", env.EventType), zap.Error(err))
			return nil
		}
		e = orders.StatusEntry{OrderID: pl.OrderID, BuyerID: pl.BuyerID, Status: pl.Status, UpdatedAt: pl.UpdatedAt}

	case orders.EventOrderStatusChanged:
		pl, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			log.Warn("skip bad payload", zap.String("type", env.EventType), zap.Error(err))
			return nil
		}
		e = orders.StatusEntry{OrderID: pl.OrderID, BuyerID: pl.BuyerID, Status: pl.To, UpdatedAt: pl.UpdatedAt}

	case orders.EventOrderDeleted:
		pl, err := kafkax.UnwrapPayload[orders.OrderDeletedPayload](env.Payload)
		if err != nil {
			log.Warn("skip bad payload", zap.String("type", env.EventType), zap.Error(err))
			return nil
		}
		e = orders.StatusEntry{OrderID: pl.OrderID, BuyerID: pl.BuyerID, Status: pl.Status, Deleted: true, UpdatedAt: pl.DeletedAt}

	default:
		// PaymentSessionOpened and future types carry no status change.
		return nil
	}

	if e.OrderID == "" {
		log.Warn("skip event without order id", zap.String("type", env.EventType))
		return nil
	}
	// Events from older producers carry no payload timestamp.
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = env.OccurredAt
	}
	if err := p.Cache.Set(ctx, e); err != nil {
		return fmt.Errorf("write status %s: %w", e.OrderID, err)
	}
	return nil
}
