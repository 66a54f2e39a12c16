package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"courier/internal/migrations"
	"courier/internal/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrStatusRegression is returned when a status update would move an outbox
// entry backwards in its lifecycle. The row is left untouched.
var ErrStatusRegression = errors.New("delivery status transition not allowed")

// ErrNotFound is returned when a row does not exist (or belongs to another user).
var ErrNotFound = errors.New("not found")

// ChangeListener receives a DeliveryChange after every committed outbox
// mutation. Callbacks run synchronously on the mutating goroutine; listeners
// must hand work off quickly.
type ChangeListener func(models.DeliveryChange)

type Database struct {
	db        *sql.DB
	encryptor *encryptor

	mu       sync.RWMutex
	listener ChangeListener
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(migrations.InitialSchema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// SetChangeListener registers the single change-feed hook. Passing nil
// disables notifications.
func (d *Database) SetChangeListener(fn ChangeListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = fn
}

func (d *Database) notify(entry *models.OutboxEntry) {
	d.mu.RLock()
	fn := d.listener
	d.mu.RUnlock()
	if fn == nil {
		return
	}
	fn(models.DeliveryChange{
		OutboxID:        entry.ID,
		UserID:          entry.UserID,
		Status:          entry.Status,
		StatusUpdatedAt: entry.StatusUpdatedAt,
		ErrorCode:       entry.ErrorCode,
		ErrorDetails:    entry.ErrorDetails,
	})
}

// InsertOutboxEntry persists a new send attempt. Missing id and timestamps
// are filled in; the stored destination may be encrypted at rest.
func (d *Database) InsertOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.StatusUpdatedAt.IsZero() {
		entry.StatusUpdatedAt = entry.CreatedAt
	}
	if !models.ValidStatus(entry.Status) {
		return fmt.Errorf("invalid delivery status: %q", entry.Status)
	}

	encryptedDest, err := d.encryptor.EncryptIfEnabled(entry.Destination)
	if err != nil {
		return fmt.Errorf("failed to encrypt destination: %w", err)
	}

	payload := entry.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = retryableDBOperation(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx, insertOutboxEntryQuery,
			entry.ID, entry.UserID, entry.Channel, encryptedDest,
			entry.Template, string(payloadJSON), entry.Status, entry.Provider,
			entry.ProviderMsgID, entry.ErrorCode, entry.ErrorDetails,
			entry.OrderID, entry.ClientID,
			entry.CreatedAt, entry.StatusUpdatedAt, entry.LastTestedAt,
		)
		return execErr
	}, "insert outbox entry")
	if err != nil {
		return err
	}

	d.notify(entry)
	return nil
}

// UpdateOutboxStatus advances an entry's delivery status. The transition is
// checked inside a transaction so concurrent updaters serialize on the row;
// a backwards transition returns ErrStatusRegression without modifying it.
func (d *Database) UpdateOutboxStatus(ctx context.Context, id string, status models.DeliveryStatus, providerMsgID, errCode, errDetails *string) error {
	if !models.ValidStatus(status) {
		return fmt.Errorf("invalid delivery status: %q", status)
	}

	var updated *models.OutboxEntry
	err := retryableDBOperation(ctx, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx, selectOutboxEntryQuery, id)
		entry, err := d.scanOutboxEntry(row)
		if err != nil {
			return err
		}

		if !models.CanTransition(entry.Status, status) {
			return ErrStatusRegression
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, updateOutboxStatusQuery,
			status, providerMsgID, errCode, errDetails, now, id); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		entry.Status = status
		entry.StatusUpdatedAt = now
		if providerMsgID != nil {
			entry.ProviderMsgID = providerMsgID
		}
		entry.ErrorCode = errCode
		entry.ErrorDetails = errDetails
		updated = entry
		return nil
	}, "update outbox status")
	if err != nil {
		return err
	}

	d.notify(updated)
	return nil
}

// GetOutboxEntry fetches an entry scoped to its owning user.
func (d *Database) GetOutboxEntry(ctx context.Context, userID, id string) (*models.OutboxEntry, error) {
	row := d.db.QueryRowContext(ctx, selectOutboxEntryForUserQuery, id, userID)
	return d.scanOutboxEntry(row)
}

// GetOutboxEntryByProviderMsgID resolves a provider callback to its entry.
func (d *Database) GetOutboxEntryByProviderMsgID(ctx context.Context, providerMsgID string) (*models.OutboxEntry, error) {
	row := d.db.QueryRowContext(ctx, selectOutboxEntryByProviderMsgIDQuery, providerMsgID)
	return d.scanOutboxEntry(row)
}

// ListOutboxByUser returns a user's most recent entries.
func (d *Database) ListOutboxByUser(ctx context.Context, userID string, limit int) ([]*models.OutboxEntry, error) {
	rows, err := d.db.QueryContext(ctx, selectOutboxByUserQuery, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox entries: %w", err)
	}
	defer rows.Close()
	return d.collectOutboxEntries(rows)
}

// ListQueuedEntries returns the oldest entries still awaiting transmission.
func (d *Database) ListQueuedEntries(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	rows, err := d.db.QueryContext(ctx, selectQueuedEntriesQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued entries: %w", err)
	}
	defer rows.Close()
	return d.collectOutboxEntries(rows)
}

// HasRecentReminder reports whether a reminder with the given template was
// already recorded for the order since the given time.
func (d *Database) HasRecentReminder(ctx context.Context, orderID, template string, since time.Time) (bool, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, countRecentRemindersQuery, orderID, template, since).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count recent reminders: %w", err)
	}
	return count > 0, nil
}

func (d *Database) collectOutboxEntries(rows *sql.Rows) ([]*models.OutboxEntry, error) {
	var entries []*models.OutboxEntry
	for rows.Next() {
		entry, err := d.scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanOutboxEntry(row rowScanner) (*models.OutboxEntry, error) {
	var entry models.OutboxEntry
	var payloadJSON string
	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.Channel, &entry.Destination,
		&entry.Template, &payloadJSON, &entry.Status, &entry.Provider,
		&entry.ProviderMsgID, &entry.ErrorCode, &entry.ErrorDetails,
		&entry.OrderID, &entry.ClientID,
		&entry.CreatedAt, &entry.StatusUpdatedAt, &entry.LastTestedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
	}

	decryptedDest, err := d.encryptor.DecryptIfEnabled(entry.Destination)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt destination: %w", err)
	}
	entry.Destination = decryptedDest

	if payloadJSON != "" {
		if err := json.Unmarshal([]byte(payloadJSON), &entry.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	return &entry, nil
}

// GetReminderRule returns the user's rule, or the default rule when none has
// been saved yet. The default is not persisted until an explicit save.
func (d *Database) GetReminderRule(ctx context.Context, userID string, defaultEscalationDays int) (*models.ReminderRule, error) {
	var rule models.ReminderRule
	var channelsJSON string
	err := d.db.QueryRowContext(ctx, selectReminderRuleQuery, userID).Scan(
		&rule.UserID, &rule.Enabled, &rule.EscalationDays, &channelsJSON,
		&rule.AutoMoveOnSent, &rule.AutoMoveOnApproved, &rule.AutoMoveOnRejected,
		&rule.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.DefaultReminderRule(userID, defaultEscalationDays), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder rule: %w", err)
	}

	if err := json.Unmarshal([]byte(channelsJSON), &rule.Channels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reminder channels: %w", err)
	}
	return &rule, nil
}

// UpsertReminderRule saves the user's rule, keyed by user id.
func (d *Database) UpsertReminderRule(ctx context.Context, rule *models.ReminderRule) error {
	channelsJSON, err := json.Marshal(rule.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder channels: %w", err)
	}
	rule.UpdatedAt = time.Now().UTC()

	return retryableDBOperation(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx, upsertReminderRuleQuery,
			rule.UserID, rule.Enabled, rule.EscalationDays, string(channelsJSON),
			rule.AutoMoveOnSent, rule.AutoMoveOnApproved, rule.AutoMoveOnRejected,
			rule.UpdatedAt,
		)
		return execErr
	}, "upsert reminder rule")
}

// InsertOrder records a reminder candidate. The full order lifecycle is the
// CRM layer's concern.
func (d *Database) InsertOrder(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.StatusEnteredAt.IsZero() {
		order.StatusEnteredAt = time.Now().UTC()
	}
	return retryableDBOperation(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx, insertOrderQuery,
			order.ID, order.UserID, order.ClientID, order.ClientName,
			order.ClientPhone, order.ClientEmail, order.Status, order.StatusEnteredAt,
		)
		return execErr
	}, "insert order")
}

// UpdateOrderStatus moves an order to a new status and stamps the entry time.
func (d *Database) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	return retryableDBOperation(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx, updateOrderStatusQuery, status, time.Now().UTC(), orderID)
		return execErr
	}, "update order status")
}

// ListOrdersAwaitingResponse selects orders still sitting in the sent state
// at scan time whose state entry is older than the cutoff. A non-nil range
// narrows the candidate window further.
func (d *Database) ListOrdersAwaitingResponse(ctx context.Context, cutoff time.Time, from, to *time.Time) ([]*models.Order, error) {
	var rows *sql.Rows
	var err error
	if from != nil && to != nil {
		rows, err = d.db.QueryContext(ctx, selectOrdersAwaitingResponseRangeQuery, cutoff, *from, *to)
	} else {
		rows, err = d.db.QueryContext(ctx, selectOrdersAwaitingResponseQuery, cutoff)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list orders awaiting response: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.ClientID, &o.ClientName, &o.ClientPhone,
			&o.ClientEmail, &o.Status, &o.StatusEnteredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}
