package ratelimit

import (
	"context"
	"time"

	"courier/internal/metrics"

	"github.com/sirupsen/logrus"
)

// CounterStore is the counting backend for fixed-window limiting. Incr
// atomically increments the counter for key, arming the window expiry on the
// counter's first increment, and returns the post-increment value.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter enforces fixed-window quotas per subject key. Each subject's
// window is independent; there is no fairness across subjects.
type Limiter struct {
	store  CounterStore
	logger *logrus.Logger
}

// NewLimiter creates a limiter over the given store. A nil store means no
// counting backend is configured and every call is allowed.
func NewLimiter(store CounterStore, logger *logrus.Logger) *Limiter {
	return &Limiter{store: store, logger: logger}
}

// Allow reports whether the call under key fits within limit for the current
// window. The quota is consumed by the check itself and is not refunded if
// the guarded operation later fails.
//
// When the counting backend is unreachable the limiter fails open: losing a
// legitimate business message is worse than an occasional over-limit burst.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if l.store == nil {
		return true
	}

	count, err := l.store.Incr(ctx, key, window)
	if err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("Rate limit backend unavailable, allowing request")
		metrics.IncrementCounter("ratelimit_backend_errors", nil, "Rate limit backend failures (failed open)")
		return true
	}

	allowed := count <= int64(limit)
	if !allowed {
		metrics.IncrementCounter("ratelimit_denied", map[string]string{"key": key}, "Requests denied by the rate limiter")
	}
	return allowed
}

// AllowStrict is the fail-closed variant used for plan-limit style guards,
// where over-granting has a direct business cost. A missing or unreachable
// backend denies the call.
func (l *Limiter) AllowStrict(ctx context.Context, key string, limit int, window time.Duration) bool {
	if l.store == nil {
		return false
	}

	count, err := l.store.Incr(ctx, key, window)
	if err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("Rate limit backend unavailable, denying request")
		return false
	}

	return count <= int64(limit)
}
