package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// RedisStore backs the limiter with shared counters so the quota holds
// across application instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a go-redis client. Returns nil for a nil client so the
// limiter degrades to always-allow in environments without shared state.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{client: client}
}

// Incr atomically increments the window counter and arms its expiry on the
// first increment. INCR and EXPIRE NX ship in one pipeline so concurrent
// incrementers on the same key cannot observe an unarmed window.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, keyPrefix+key)
		pipe.ExpireNX(ctx, keyPrefix+key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return incr.Val(), nil
}
