package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct{}

func (brokenStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, fmt.Errorf("connection refused")
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestLimiter_WindowExhaustion(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), testLogger())
	ctx := context.Background()

	const limit = 5
	for i := 0; i < limit; i++ {
		assert.True(t, limiter.Allow(ctx, "send:user-1", limit, time.Minute), "call %d should be allowed", i+1)
	}
	assert.False(t, limiter.Allow(ctx, "send:user-1", limit, time.Minute), "call over limit should be denied")
}

func TestLimiter_WindowReset(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }
	limiter := NewLimiter(store, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Allow(ctx, "send:user-1", 3, time.Minute))
	}
	require.False(t, limiter.Allow(ctx, "send:user-1", 3, time.Minute))

	current = current.Add(61 * time.Second)
	assert.True(t, limiter.Allow(ctx, "send:user-1", 3, time.Minute), "new window should allow again")
}

func TestLimiter_SubjectsAreIndependent(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), testLogger())
	ctx := context.Background()

	require.True(t, limiter.Allow(ctx, "send:user-1", 1, time.Minute))
	require.False(t, limiter.Allow(ctx, "send:user-1", 1, time.Minute))
	assert.True(t, limiter.Allow(ctx, "send:user-2", 1, time.Minute))
}

func TestLimiter_ConcurrentBurst(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), testLogger())
	ctx := context.Background()

	const limit = 10
	const calls = 2 * limit

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow(ctx, "send:user-1", limit, time.Minute) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(limit), allowed.Load(), "exactly limit calls should pass under concurrency")
}

func TestLimiter_FailOpen(t *testing.T) {
	limiter := NewLimiter(brokenStore{}, testLogger())
	for i := 0; i < 20; i++ {
		assert.True(t, limiter.Allow(context.Background(), "send:user-1", 1, time.Minute))
	}
}

func TestLimiter_NoBackendAlwaysAllows(t *testing.T) {
	limiter := NewLimiter(nil, testLogger())
	for i := 0; i < 20; i++ {
		assert.True(t, limiter.Allow(context.Background(), "send:user-1", 1, time.Minute))
	}
}

func TestLimiter_StrictFailsClosed(t *testing.T) {
	ctx := context.Background()

	assert.False(t, NewLimiter(nil, testLogger()).AllowStrict(ctx, "plan:user-1", 5, time.Minute))
	assert.False(t, NewLimiter(brokenStore{}, testLogger()).AllowStrict(ctx, "plan:user-1", 5, time.Minute))

	limiter := NewLimiter(NewMemoryStore(), testLogger())
	assert.True(t, limiter.AllowStrict(ctx, "plan:user-1", 1, time.Minute))
	assert.False(t, limiter.AllowStrict(ctx, "plan:user-1", 1, time.Minute))
}

func TestNewRedisStoreNilClient(t *testing.T) {
	assert.Nil(t, NewRedisStore(nil))
}
