package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"courier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "courier-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testEntry(userID string) *models.OutboxEntry {
	return &models.OutboxEntry{
		UserID:      userID,
		Channel:     models.ChannelSMS,
		Destination: "+5511999998888",
		Template:    "order_sent",
		Payload:     map[string]string{"client": "Maria"},
		Status:      models.DeliveryStatusSent,
		Provider:    "twigo",
	}
}

func TestInsertAndGetOutboxEntry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := testEntry("user-1")
	require.NoError(t, db.InsertOutboxEntry(ctx, entry))
	require.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	got, err := db.GetOutboxEntry(ctx, "user-1", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, models.ChannelSMS, got.Channel)
	assert.Equal(t, "+5511999998888", got.Destination)
	assert.Equal(t, map[string]string{"client": "Maria"}, got.Payload)
	assert.Equal(t, models.DeliveryStatusSent, got.Status)
}

func TestGetOutboxEntryOwnerScoped(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := testEntry("user-1")
	require.NoError(t, db.InsertOutboxEntry(ctx, entry))

	_, err := db.GetOutboxEntry(ctx, "user-2", entry.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateOutboxStatusForward(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := testEntry("user-1")
	require.NoError(t, db.InsertOutboxEntry(ctx, entry))

	require.NoError(t, db.UpdateOutboxStatus(ctx, entry.ID, models.DeliveryStatusDelivered, nil, nil, nil))

	got, err := db.GetOutboxEntry(ctx, "user-1", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusDelivered, got.Status)
	assert.True(t, got.StatusUpdatedAt.After(got.CreatedAt) || got.StatusUpdatedAt.Equal(got.CreatedAt))
}

func TestUpdateOutboxStatusRejectsRegression(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := testEntry("user-1")
	require.NoError(t, db.InsertOutboxEntry(ctx, entry))

	err := db.UpdateOutboxStatus(ctx, entry.ID, models.DeliveryStatusQueued, nil, nil, nil)
	assert.ErrorIs(t, err, ErrStatusRegression)

	got, err := db.GetOutboxEntry(ctx, "user-1", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusSent, got.Status)
}

func TestUpdateOutboxStatusTerminalIsFinal(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := testEntry("user-1")
	entry.Status = models.DeliveryStatusFailed
	require.NoError(t, db.InsertOutboxEntry(ctx, entry))

	err := db.UpdateOutboxStatus(ctx, entry.ID, models.DeliveryStatusSent, nil, nil, nil)
	assert.ErrorIs(t, err, ErrStatusRegression)
}

func TestUpdateOutboxStatusNotFound(t *testing.T) {
	db := setupTestDB(t)
	err := db.UpdateOutboxStatus(context.Background(), "missing-id", models.DeliveryStatusSent, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListQueuedEntries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	queued := testEntry("user-1")
	queued.Status = models.DeliveryStatusQueued
	queued.Provider = models.ProviderSystem
	require.NoError(t, db.InsertOutboxEntry(ctx, queued))

	sent := testEntry("user-1")
	require.NoError(t, db.InsertOutboxEntry(ctx, sent))

	entries, err := db.ListQueuedEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, queued.ID, entries[0].ID)
}

func TestGetOutboxEntryByProviderMsgID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := testEntry("user-1")
	msgID := "prov-msg-77"
	entry.ProviderMsgID = &msgID
	require.NoError(t, db.InsertOutboxEntry(ctx, entry))

	got, err := db.GetOutboxEntryByProviderMsgID(ctx, "prov-msg-77")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)

	_, err = db.GetOutboxEntryByProviderMsgID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHasRecentReminder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	orderID := "order-9"
	entry := testEntry("user-1")
	entry.Template = "order_reminder"
	entry.OrderID = &orderID
	require.NoError(t, db.InsertOutboxEntry(ctx, entry))

	found, err := db.HasRecentReminder(ctx, orderID, "order_reminder", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = db.HasRecentReminder(ctx, orderID, "order_reminder", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, found)

	found, err = db.HasRecentReminder(ctx, "other-order", "order_reminder", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReminderRuleDefaultAndUpsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rule, err := db.GetReminderRule(ctx, "user-1", 3)
	require.NoError(t, err)
	assert.True(t, rule.Enabled)
	assert.Equal(t, 3, rule.EscalationDays)
	assert.Equal(t, []models.Channel{models.ChannelWhatsApp}, rule.Channels)

	rule.EscalationDays = 5
	rule.Channels = []models.Channel{models.ChannelWhatsApp, models.ChannelEmail}
	rule.AutoMoveOnApproved = true
	require.NoError(t, db.UpsertReminderRule(ctx, rule))

	saved, err := db.GetReminderRule(ctx, "user-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, saved.EscalationDays)
	assert.Equal(t, []models.Channel{models.ChannelWhatsApp, models.ChannelEmail}, saved.Channels)
	assert.True(t, saved.AutoMoveOnApproved)

	// Second save updates in place, one rule per user
	saved.Enabled = false
	require.NoError(t, db.UpsertReminderRule(ctx, saved))
	again, err := db.GetReminderRule(ctx, "user-1", 3)
	require.NoError(t, err)
	assert.False(t, again.Enabled)
}

func TestListOrdersAwaitingResponse(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	old := &models.Order{
		UserID: "user-1", ClientPhone: "11999998888",
		Status: models.OrderStatusSent, StatusEnteredAt: time.Now().Add(-96 * time.Hour),
	}
	require.NoError(t, db.InsertOrder(ctx, old))

	fresh := &models.Order{
		UserID: "user-1", ClientPhone: "11999997777",
		Status: models.OrderStatusSent, StatusEnteredAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.InsertOrder(ctx, fresh))

	approved := &models.Order{
		UserID: "user-1", ClientPhone: "11999996666",
		Status: models.OrderStatusApproved, StatusEnteredAt: time.Now().Add(-96 * time.Hour),
	}
	require.NoError(t, db.InsertOrder(ctx, approved))

	cutoff := time.Now().Add(-72 * time.Hour)
	orders, err := db.ListOrdersAwaitingResponse(ctx, cutoff, nil, nil)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, old.ID, orders[0].ID)

	// State change removes the candidate at the next scan
	require.NoError(t, db.UpdateOrderStatus(ctx, old.ID, models.OrderStatusApproved))
	orders, err = db.ListOrdersAwaitingResponse(ctx, cutoff, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestChangeListenerReceivesMutations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var changes []models.DeliveryChange
	db.SetChangeListener(func(c models.DeliveryChange) {
		changes = append(changes, c)
	})

	entry := testEntry("user-1")
	require.NoError(t, db.InsertOutboxEntry(ctx, entry))
	require.NoError(t, db.UpdateOutboxStatus(ctx, entry.ID, models.DeliveryStatusDelivered, nil, nil, nil))

	require.Len(t, changes, 2)
	assert.Equal(t, entry.ID, changes[0].OutboxID)
	assert.Equal(t, models.DeliveryStatusSent, changes[0].Status)
	assert.Equal(t, models.DeliveryStatusDelivered, changes[1].Status)
	assert.Equal(t, "user-1", changes[1].UserID)

	// Regressions never produce events
	err := db.UpdateOutboxStatus(ctx, entry.ID, models.DeliveryStatusSent, nil, nil, nil)
	assert.ErrorIs(t, err, ErrStatusRegression)
	assert.Len(t, changes, 2)
}
