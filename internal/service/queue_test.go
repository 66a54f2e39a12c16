package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/database"
	apperrors "courier/internal/errors"
	"courier/internal/models"
	"courier/internal/ratelimit"
)

func setupQueue(t *testing.T, sendLimit int) (*QueueWorker, *Dispatcher, *database.Database, *fakeSender) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sender := &fakeSender{}
	guard := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), testLogger())
	rateCfg := models.RateLimitConfig{SendLimit: sendLimit, SendWindowSec: 60}

	d := NewDispatcher(db, sender, guard, rateCfg, "55", testLogger())
	w := NewQueueWorker(db, sender, guard, rateCfg, 15*time.Second, 50, testLogger())
	return w, d, db, sender
}

func queueMessage(t *testing.T, d *Dispatcher, userID, content string) *models.OutboxEntry {
	t.Helper()
	entry, err := d.Dispatch(context.Background(), userID, &models.SendRequest{
		Channel:     "sms",
		Destination: "11999998888",
		Content:     content,
		Queue:       true,
	})
	require.NoError(t, err)
	return entry
}

func TestDrainDeliversQueuedEntries(t *testing.T) {
	w, d, db, sender := setupQueue(t, 10)
	ctx := context.Background()

	first := queueMessage(t, d, "user-1", "one")
	second := queueMessage(t, d, "user-1", "two")

	sent, err := w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 2, sender.callCount())
	assert.Equal(t, "one", sender.calls[0].body)

	for _, id := range []string{first.ID, second.ID} {
		stored, err := db.GetOutboxEntry(ctx, "user-1", id)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStatusSent, stored.Status)
		assert.NotNil(t, stored.ProviderMsgID)
	}

	remaining, err := db.ListQueuedEntries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDrainLeavesRateLimitedEntriesQueued(t *testing.T) {
	w, d, db, _ := setupQueue(t, 1)
	ctx := context.Background()

	queueMessage(t, d, "user-1", "one")
	queueMessage(t, d, "user-1", "two")

	sent, err := w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	remaining, err := db.ListQueuedEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, models.DeliveryStatusQueued, remaining[0].Status)
}

func TestDrainMarksProviderFailures(t *testing.T) {
	w, d, db, sender := setupQueue(t, 10)
	ctx := context.Background()

	entry := queueMessage(t, d, "user-1", "one")
	sender.failWith = apperrors.NewProviderError("twigo", 400, fmt.Errorf("bad destination"))

	sent, err := w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	stored, err := db.GetOutboxEntry(ctx, "user-1", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorCode)
	assert.Equal(t, string(apperrors.ErrCodeProviderRejected), *stored.ErrorCode)
}

func TestDrainIsolatesAccounts(t *testing.T) {
	w, d, db, _ := setupQueue(t, 1)
	ctx := context.Background()

	queueMessage(t, d, "user-1", "one")
	queueMessage(t, d, "user-2", "two")

	// Separate accounts have separate windows, so both drain in one pass.
	sent, err := w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	remaining, err := db.ListQueuedEntries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestQueueWorkerStartStop(t *testing.T) {
	w, d, db, _ := setupQueue(t, 10)
	entry := queueMessage(t, d, "user-1", "one")

	w.interval = 10 * time.Millisecond
	w.Start(context.Background())
	w.Start(context.Background()) // second call is a no-op

	require.Eventually(t, func() bool {
		stored, err := db.GetOutboxEntry(context.Background(), "user-1", entry.ID)
		return err == nil && stored.Status == models.DeliveryStatusSent
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
	w.Stop() // idempotent
}
