package database

import (
	"context"
	"path/filepath"
	"testing"

	"courier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptorDisabledPassesThrough(t *testing.T) {
	t.Setenv("COURIER_ENABLE_ENCRYPTION", "false")

	e, err := NewEncryptor()
	require.NoError(t, err)

	out, err := e.EncryptIfEnabled("+5511999998888")
	require.NoError(t, err)
	assert.Equal(t, "+5511999998888", out)
}

func TestEncryptorRoundTrip(t *testing.T) {
	t.Setenv("COURIER_ENABLE_ENCRYPTION", "true")
	t.Setenv("COURIER_ENCRYPTION_SECRET", "0123456789abcdef0123456789abcdef")

	e, err := NewEncryptor()
	require.NoError(t, err)

	ciphertext, err := e.Encrypt("+5511999998888")
	require.NoError(t, err)
	assert.NotEqual(t, "+5511999998888", ciphertext)

	plaintext, err := e.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "+5511999998888", plaintext)
}

func TestEncryptorRequiresSecret(t *testing.T) {
	t.Setenv("COURIER_ENABLE_ENCRYPTION", "true")
	t.Setenv("COURIER_ENCRYPTION_SECRET", "")

	_, err := NewEncryptor()
	assert.Error(t, err)
}

func TestEncryptorRejectsShortSecret(t *testing.T) {
	t.Setenv("COURIER_ENABLE_ENCRYPTION", "true")
	t.Setenv("COURIER_ENCRYPTION_SECRET", "too-short")

	_, err := NewEncryptor()
	assert.Error(t, err)
}

func TestOutboxDestinationEncryptedAtRest(t *testing.T) {
	t.Setenv("COURIER_ENABLE_ENCRYPTION", "true")
	t.Setenv("COURIER_ENCRYPTION_SECRET", "0123456789abcdef0123456789abcdef")

	db, err := New(filepath.Join(t.TempDir(), "enc-test.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	entry := &models.OutboxEntry{
		UserID:      "user-1",
		Channel:     models.ChannelSMS,
		Destination: "+5511999998888",
		Status:      models.DeliveryStatusSent,
		Provider:    "twigo",
	}
	require.NoError(t, db.InsertOutboxEntry(ctx, entry))

	var stored string
	require.NoError(t, db.db.QueryRow("SELECT destination FROM outbox_entries WHERE id = ?", entry.ID).Scan(&stored))
	assert.NotEqual(t, "+5511999998888", stored)

	got, err := db.GetOutboxEntry(ctx, "user-1", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "+5511999998888", got.Destination)
}
