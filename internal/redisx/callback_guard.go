package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CallbackGuard lets one gateway callback per transaction through.
type CallbackGuard struct {
	RDB redis.Cmdable
	TTL time.Duration
}

func NewCallbackGuard(rdb redis.Cmdable) *CallbackGuard {
	return &CallbackGuard{RDB: rdb, TTL: TTLDedup}
}

// Acquire records the callback kind for transactionID. ok=false means a callback
// for that transaction was already taken.
func (g *CallbackGuard) Acquire(ctx context.Context, transactionID, kind string) (bool, error) {
	return g.RDB.SetNX(ctx, fmt.Sprintf(KeyPaymentDedup, transactionID), kind, g.TTL).Result()
}

// Release forgets a callback so the gateway may retry it.
func (g *CallbackGuard) Release(ctx context.Context, transactionID string) error {
	return g.RDB.Del(ctx, fmt.Sprintf(KeyPaymentDedup, transactionID)).Err()
}
