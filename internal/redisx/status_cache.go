package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

// setIfNewer stores an entry hash {v: version, e: entry JSON} unless the key
// already holds a higher version. Versions are UpdatedAt in microseconds.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'e', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// StatusCache keeps orders.StatusEntry values under KeyOrderStatus.
type StatusCache struct {
	RDB redis.Cmdable
	TTL time.Duration
}

func NewStatusCache(rdb redis.Cmdable) *StatusCache {
	return &StatusCache{RDB: rdb, TTL: TTLStatusCache}
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (orders.StatusEntry, bool, error) {
	raw, err := c.RDB.HGet(ctx, fmt.Sprintf(KeyOrderStatus, orderID), "e").Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.StatusEntry{}, false, nil
	}
	if err != nil {
		return orders.StatusEntry{}, false, err
	}
	var e orders.StatusEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return orders.StatusEntry{}, false, fmt.Errorf("decode status entry: %w", err)
	}
	return e, true, nil
}

// Set writes e unless the cache holds an entry with a later UpdatedAt.
func (c *StatusCache) Set(ctx context.Context, e orders.StatusEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(KeyOrderStatus, e.OrderID)
	return setIfNewer.Run(ctx, c.RDB, []string{key}, e.UpdatedAt.UnixMicro(), string(b), c.TTL.Milliseconds()).Err()
}
