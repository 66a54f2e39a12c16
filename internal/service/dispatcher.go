package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"courier/internal/constants"
	"courier/internal/database"
	apperrors "courier/internal/errors"
	"courier/internal/httputil"
	"courier/internal/metrics"
	"courier/internal/models"
	"courier/internal/validation"
	"courier/pkg/messaging"
)

const sendRateKeyPrefix = "send:"

// OutboxStore is the persistence surface the dispatcher needs. *database.Database
// satisfies it.
type OutboxStore interface {
	InsertOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error
	UpdateOutboxStatus(ctx context.Context, id string, status models.DeliveryStatus, providerMsgID, errCode, errDetails *string) error
	GetOutboxEntry(ctx context.Context, userID, id string) (*models.OutboxEntry, error)
	GetOutboxEntryByProviderMsgID(ctx context.Context, providerMsgID string) (*models.OutboxEntry, error)
	ListOutboxByUser(ctx context.Context, userID string, limit int) ([]*models.OutboxEntry, error)
}

// RateGuard is the throttle decision the dispatcher consults before each
// provider call. *ratelimit.Limiter satisfies it.
type RateGuard interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) bool
}

// Dispatcher validates send requests, charges the per-account rate limit,
// performs the provider call and records the outcome in the outbox.
type Dispatcher struct {
	store          OutboxStore
	sender         ChannelSender
	guard          RateGuard
	sendLimit      int
	sendWindow     time.Duration
	defaultCountry string
	logger         *logrus.Logger
}

func NewDispatcher(store OutboxStore, sender ChannelSender, guard RateGuard, rateCfg models.RateLimitConfig, defaultCountry string, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		store:          store,
		sender:         sender,
		guard:          guard,
		sendLimit:      rateCfg.SendLimit,
		sendWindow:     time.Duration(rateCfg.SendWindowSec) * time.Second,
		defaultCountry: defaultCountry,
		logger:         logger,
	}
}

// Dispatch handles a single send request for the authenticated account.
// Queued requests are persisted without charging the rate limit; immediate
// sends are throttled, sent and recorded. A provider failure is recorded as a
// failed entry and returned to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, req *models.SendRequest) (*models.OutboxEntry, error) {
	if userID == "" {
		return nil, apperrors.NewUnauthorizedError("missing account identity")
	}

	channel, err := models.ParseChannel(req.Channel)
	if err != nil {
		return nil, apperrors.NewValidationError("channel", err.Error())
	}

	destination, err := d.normalizeDestination(channel, req.Destination)
	if err != nil {
		return nil, err
	}

	if req.Content == "" && req.Template == "" {
		return nil, apperrors.NewValidationError("content", "either content or template is required")
	}
	if err := validation.ValidateTemplateName(req.Template); err != nil {
		return nil, err
	}
	if err := validation.ValidateContent(req.Content, req.Subject); err != nil {
		return nil, err
	}
	if err := validation.ValidatePayload(req.Payload); err != nil {
		return nil, err
	}

	entry := d.buildEntry(userID, channel, destination, req)

	if req.Queue {
		entry.Status = models.DeliveryStatusQueued
		entry.Provider = models.ProviderSystem
		// The drain loop reconstructs the provider call from the payload.
		if entry.Payload == nil {
			entry.Payload = make(map[string]string)
		}
		entry.Payload["content"] = req.Content
		if req.Subject != "" {
			entry.Payload["subject"] = req.Subject
		}
		if err := d.store.InsertOutboxEntry(ctx, entry); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to persist queued message")
		}
		metrics.IncrementCounter("dispatch_queued_total", map[string]string{"channel": string(channel)}, "Messages deferred to the send queue")
		return entry, nil
	}

	if !d.guard.Allow(ctx, sendRateKeyPrefix+userID, d.sendLimit, d.sendWindow) {
		metrics.IncrementCounter("dispatch_rate_limited_total", map[string]string{"channel": string(channel)}, "Sends rejected by the rate limit")
		return nil, apperrors.NewRateLimitedError(d.sendLimit, int(d.sendWindow/time.Second))
	}

	entry.Provider = d.sender.Provider(channel)

	providerMsgID, sendErr := d.sender.Send(ctx, channel, destination, req.Subject, req.Content)
	if sendErr != nil {
		d.recordFailure(ctx, entry, sendErr)
		return nil, sendErr
	}

	entry.Status = models.DeliveryStatusSent
	entry.ProviderMsgID = &providerMsgID
	if err := d.store.InsertOutboxEntry(ctx, entry); err != nil {
		// The provider accepted the message; losing the audit row must not
		// surface as a send failure to the caller.
		d.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":         userID,
			"provider_msg_id": providerMsgID,
		}).Error("Message sent but outbox record failed, manual reconciliation needed")
		metrics.IncrementCounter("dispatch_record_lost_total", nil, "Sent messages whose outbox record failed")
		return entry, nil
	}

	d.logger.WithFields(logrus.Fields{
		"channel":     string(channel),
		"destination": httputil.MaskDestination(destination, constants.DefaultPhoneMaskLength),
		"outbox_id":   entry.ID,
	}).Debug("Message dispatched")
	metrics.IncrementCounter("dispatch_sent_total", map[string]string{"channel": string(channel)}, "Messages accepted by a provider")
	return entry, nil
}

// GetEntry returns an outbox entry scoped to the requesting account.
func (d *Dispatcher) GetEntry(ctx context.Context, userID, entryID string) (*models.OutboxEntry, error) {
	if userID == "" {
		return nil, apperrors.NewUnauthorizedError("missing account identity")
	}
	entry, err := d.store.GetOutboxEntry(ctx, userID, entryID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("outbox entry", entryID)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to load outbox entry")
	}
	return entry, nil
}

// ListEntries returns the most recent outbox entries for the account.
func (d *Dispatcher) ListEntries(ctx context.Context, userID string, limit int) ([]*models.OutboxEntry, error) {
	if userID == "" {
		return nil, apperrors.NewUnauthorizedError("missing account identity")
	}
	entries, err := d.store.ListOutboxByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to list outbox entries")
	}
	return entries, nil
}

// RecordProviderStatus applies an asynchronous provider status callback to the
// referenced entry. Entries are looked up by provider message id. Status
// regressions are logged and swallowed so provider retries of stale callbacks
// stay harmless.
func (d *Dispatcher) RecordProviderStatus(ctx context.Context, providerMsgID string, status models.DeliveryStatus, errCode, errDetails *string) error {
	if providerMsgID == "" {
		return apperrors.NewValidationError("provider_msg_id", "provider message id is required")
	}
	if !models.ValidStatus(status) {
		return apperrors.NewValidationError("status", "unknown delivery status")
	}

	entry, err := d.store.GetOutboxEntryByProviderMsgID(ctx, providerMsgID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperrors.NewNotFoundError("outbox entry", providerMsgID)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to resolve provider message id")
	}

	err = d.store.UpdateOutboxStatus(ctx, entry.ID, status, nil, errCode, errDetails)
	if err != nil {
		if errors.Is(err, database.ErrStatusRegression) {
			d.logger.WithFields(logrus.Fields{
				"outbox_id": entry.ID,
				"from":      entry.Status,
				"to":        status,
			}).Warn("Ignoring out-of-order provider status callback")
			metrics.IncrementCounter("status_callbacks_stale_total", nil, "Out-of-order provider status callbacks ignored")
			return nil
		}
		return apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to update delivery status")
	}

	metrics.IncrementCounter("status_callbacks_applied_total", map[string]string{"status": string(status)}, "Provider status callbacks applied")
	return nil
}

func (d *Dispatcher) normalizeDestination(channel models.Channel, destination string) (string, error) {
	if channel == models.ChannelEmail {
		trimmed := strings.TrimSpace(destination)
		if err := validation.ValidateEmailAddress(trimmed); err != nil {
			return "", err
		}
		return trimmed, nil
	}

	normalized, err := messaging.NormalizePhone(destination, d.defaultCountry)
	if err != nil {
		return "", apperrors.NewValidationError("destination", err.Error())
	}
	return normalized, nil
}

func (d *Dispatcher) buildEntry(userID string, channel models.Channel, destination string, req *models.SendRequest) *models.OutboxEntry {
	entry := &models.OutboxEntry{
		UserID:      userID,
		Channel:     channel,
		Destination: destination,
		Template:    req.Template,
		Payload:     req.Payload,
	}
	if req.OrderID != "" {
		entry.OrderID = &req.OrderID
	}
	if req.ClientID != "" {
		entry.ClientID = &req.ClientID
	}
	return entry
}

func (d *Dispatcher) recordFailure(ctx context.Context, entry *models.OutboxEntry, sendErr error) {
	entry.Status = models.DeliveryStatusFailed
	code := string(apperrors.GetCode(sendErr))
	detail := sendErr.Error()
	entry.ErrorCode = &code
	entry.ErrorDetails = &detail

	if err := d.store.InsertOutboxEntry(ctx, entry); err != nil {
		d.logger.WithError(err).WithField("user_id", entry.UserID).Error("Failed to record failed delivery")
	}
	d.logger.WithError(sendErr).WithFields(logrus.Fields{
		"channel":     string(entry.Channel),
		"destination": httputil.MaskDestination(entry.Destination, constants.DefaultPhoneMaskLength),
	}).Warn("Provider rejected message")
	metrics.IncrementCounter("dispatch_failed_total", map[string]string{"channel": string(entry.Channel)}, "Provider send failures")
}
