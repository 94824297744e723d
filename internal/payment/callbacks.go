package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

// ErrDuplicateCallback is returned when a callback for the same transaction
// was already taken.
var ErrDuplicateCallback = errors.New("payment: duplicate callback")

type OutcomeApplier interface {
	ApplyPaymentOutcome(ctx context.Context, transactionID string, t orders.Trigger) (orders.Order, error)
}

// Guard deduplicates callbacks per transaction.
type Guard interface {
	Acquire(ctx context.Context, transactionID, kind string) (bool, error)
	Release(ctx context.Context, transactionID string) error
}

// Callbacks translates gateway outcomes into lifecycle transitions.
type Callbacks struct {
	orders OutcomeApplier
	guard  Guard
	logger *zap.Logger
}

func NewCallbacks(o OutcomeApplier, g Guard, logger *zap.Logger) *Callbacks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Callbacks{orders: o, guard: g, logger: logger}
}

// TriggerFor maps a callback kind to its lifecycle trigger.
func TriggerFor(kind string) (orders.Trigger, bool) {
	switch kind {
	case KindSuccess:
		return orders.TriggerPaymentSuccess, true
	case KindFail:
		return orders.TriggerPaymentFail, true
	case KindCancel:
		return orders.TriggerPaymentCancel, true
	}
	return "", false
}

// Handle applies one callback. A guard failure is logged and the callback is
// still applied; the order row lock keeps the transition single.
func (c *Callbacks) Handle(ctx context.Context, tranID, kind string) (orders.Order, error) {
	t, ok := TriggerFor(kind)
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: unknown callback %q", orders.ErrInvalidInput, kind)
	}
	tranID = strings.TrimSpace(tranID)
	if tranID == "" {
		return orders.Order{}, fmt.Errorf("%w: tran_id is required", orders.ErrInvalidInput)
	}
	log := c.logger.With(zap.String("transaction_id", tranID), zap.String("kind", kind))

	guarded := false
	if c.guard != nil {
		first, err := c.guard.Acquire(ctx, tranID, kind)
		switch {
		case err != nil:
			log.Warn("callback guard unavailable", zap.Error(err))
		case !first:
			log.Info("duplicate payment callback dropped")
			return orders.Order{}, ErrDuplicateCallback
		default:
			guarded = true
		}
	}

	o, err := c.orders.ApplyPaymentOutcome(ctx, tranID, t)
	if err != nil {
		if guarded {
			if rerr := c.guard.Release(ctx, tranID); rerr != nil {
				log.Warn("release callback guard", zap.Error(rerr))
			}
		}
		log.Warn("payment callback not applied", zap.Error(err))
		return orders.Order{}, err
	}
	log.Info("payment callback applied", zap.String("order_id", o.ID), zap.String("status", string(o.Status)))
	return o, nil
}

// IPNKind maps an SSLCommerz IPN status to a callback kind.
func IPNKind(status string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "VALID", "VALIDATED":
		return KindSuccess, true
	case "FAILED":
		return KindFail, true
	case "CANCELLED":
		return KindCancel, true
	}
	return "", false
}
