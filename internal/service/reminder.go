package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "courier/internal/errors"
	"courier/internal/metrics"
	"courier/internal/models"
)

const (
	reminderTemplate = "order_reminder"

	// Optional RFC 3339 bounds narrowing which orders a sweep inspects.
	sweepFromEnvVar = "COURIER_SWEEP_FROM"
	sweepToEnvVar   = "COURIER_SWEEP_TO"
)

// ReminderStore is the persistence surface the reminder engine reads from.
type ReminderStore interface {
	ListOrdersAwaitingResponse(ctx context.Context, cutoff time.Time, from, to *time.Time) ([]*models.Order, error)
	GetReminderRule(ctx context.Context, userID string, defaultEscalationDays int) (*models.ReminderRule, error)
	HasRecentReminder(ctx context.Context, orderID, template string, since time.Time) (bool, error)
}

// MessageDispatcher is the send path reminders flow through, so reminder
// traffic is throttled and audited exactly like interactive sends.
type MessageDispatcher interface {
	Dispatch(ctx context.Context, userID string, req *models.SendRequest) (*models.OutboxEntry, error)
}

// ReminderEngine nudges clients about quotes that have sat unanswered past
// each account's escalation window.
type ReminderEngine struct {
	store                 ReminderStore
	dispatcher            MessageDispatcher
	defaultEscalationDays int
	dedupWindow           time.Duration
	logger                *logrus.Logger

	now func() time.Time
}

func NewReminderEngine(store ReminderStore, dispatcher MessageDispatcher, cfg models.RemindersConfig, logger *logrus.Logger) *ReminderEngine {
	return &ReminderEngine{
		store:                 store,
		dispatcher:            dispatcher,
		defaultEscalationDays: cfg.DefaultEscalationDays,
		dedupWindow:           time.Duration(cfg.DedupHours) * time.Hour,
		logger:                logger,
		now:                   time.Now,
	}
}

// RunSweep walks orders awaiting a client response and sends a reminder for
// each order older than its account's escalation window, at most once per
// dedup window. It returns how many orders were reminded. Failures on a
// single order never abort the sweep.
func (e *ReminderEngine) RunSweep(ctx context.Context) (int, error) {
	now := e.now().UTC()

	from, to, err := sweepRange()
	if err != nil {
		return 0, err
	}

	// Per-account escalation windows are applied below, so candidates are
	// fetched with the loosest possible cutoff.
	orders, err := e.store.ListOrdersAwaitingResponse(ctx, now, from, to)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to list orders awaiting response")
	}

	rules := make(map[string]*models.ReminderRule)
	processed := 0

	for _, order := range orders {
		rule, ok := rules[order.UserID]
		if !ok {
			rule, err = e.store.GetReminderRule(ctx, order.UserID, e.defaultEscalationDays)
			if err != nil {
				e.logger.WithError(err).WithField("user_id", order.UserID).Error("Failed to load reminder rule, skipping account")
				continue
			}
			rules[order.UserID] = rule
		}

		if !rule.Enabled {
			continue
		}

		cutoff := now.Add(-time.Duration(rule.EscalationDays) * 24 * time.Hour)
		if order.StatusEnteredAt.After(cutoff) {
			continue
		}

		reminded, err := e.store.HasRecentReminder(ctx, order.ID, reminderTemplate, now.Add(-e.dedupWindow))
		if err != nil {
			e.logger.WithError(err).WithField("order_id", order.ID).Error("Reminder dedup check failed, skipping order")
			continue
		}
		if reminded {
			continue
		}

		if e.remindOrder(ctx, order, rule) {
			processed++
		}
	}

	metrics.AddToCounter("reminders_processed_total", float64(processed), nil, "Orders reminded by sweeps")
	return processed, nil
}

// remindOrder sends the reminder on every configured channel and reports
// whether at least one channel went through.
func (e *ReminderEngine) remindOrder(ctx context.Context, order *models.Order, rule *models.ReminderRule) bool {
	sent := false

	for _, channel := range rule.Channels {
		destination := e.destinationFor(channel, order)
		if destination == "" {
			e.logger.WithFields(logrus.Fields{
				"order_id": order.ID,
				"channel":  channel,
			}).Debug("Order has no contact for reminder channel")
			continue
		}

		req := &models.SendRequest{
			Channel:     string(channel),
			Destination: destination,
			Template:    reminderTemplate,
			Subject:     "Still interested in your quote?",
			Content:     reminderBody(order),
			OrderID:     order.ID,
			ClientID:    order.ClientID,
		}

		if _, err := e.dispatcher.Dispatch(ctx, order.UserID, req); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"order_id": order.ID,
				"channel":  channel,
			}).Warn("Reminder send failed")
			continue
		}
		sent = true
	}

	return sent
}

func (e *ReminderEngine) destinationFor(channel models.Channel, order *models.Order) string {
	if channel == models.ChannelEmail {
		return order.ClientEmail
	}
	return order.ClientPhone
}

func reminderBody(order *models.Order) string {
	name := order.ClientName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s, just checking in on the quote we sent you. Let us know if you have any questions or would like to move forward.", name)
}

func sweepRange() (*time.Time, *time.Time, error) {
	from, err := parseSweepBound(sweepFromEnvVar)
	if err != nil {
		return nil, nil, err
	}
	to, err := parseSweepBound(sweepToEnvVar)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func parseSweepBound(envVar string) (*time.Time, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.NewConfigError(envVar, "must be an RFC 3339 timestamp")
	}
	return &parsed, nil
}
