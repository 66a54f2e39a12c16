package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"courier/internal/database"
	apperrors "courier/internal/errors"
	"courier/internal/metrics"
	"courier/internal/models"
)

// QueueStore is the persistence surface the queue worker drains from.
type QueueStore interface {
	ListQueuedEntries(ctx context.Context, limit int) ([]*models.OutboxEntry, error)
	UpdateOutboxStatus(ctx context.Context, id string, status models.DeliveryStatus, providerMsgID, errCode, errDetails *string) error
}

// QueueWorker periodically drains queued outbox entries through the provider
// send path. Entries that hit the rate limit stay queued and are retried on a
// later drain.
type QueueWorker struct {
	store      QueueStore
	sender     ChannelSender
	guard      RateGuard
	sendLimit  int
	sendWindow time.Duration
	interval   time.Duration
	batchSize  int
	logger     *logrus.Logger

	stopCh chan struct{}
	doneCh chan struct{}
	mu     sync.Mutex
	active bool
}

func NewQueueWorker(store QueueStore, sender ChannelSender, guard RateGuard, rateCfg models.RateLimitConfig, interval time.Duration, batchSize int, logger *logrus.Logger) *QueueWorker {
	return &QueueWorker{
		store:      store,
		sender:     sender,
		guard:      guard,
		sendLimit:  rateCfg.SendLimit,
		sendWindow: time.Duration(rateCfg.SendWindowSec) * time.Second,
		interval:   interval,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Start launches the drain loop. It is a no-op if the worker is already
// running.
func (w *QueueWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active {
		return
	}
	w.active = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.run(ctx)
	w.logger.WithField("interval", w.interval.String()).Info("Queue worker started")
}

// Stop halts the drain loop and waits for an in-flight drain to finish.
func (w *QueueWorker) Stop() {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}
	w.active = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	<-done
	w.logger.Info("Queue worker stopped")
}

func (w *QueueWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, err := w.DrainOnce(ctx)
			if err != nil {
				w.logger.WithError(err).Error("Queue drain failed")
			} else if sent > 0 {
				w.logger.WithField("sent", sent).Debug("Queue drain completed")
			}
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// DrainOnce attempts delivery of up to one batch of queued entries and
// returns how many were handed to a provider. A rate-limited entry is left
// queued; a provider failure marks the entry failed and moves on.
func (w *QueueWorker) DrainOnce(ctx context.Context) (int, error) {
	entries, err := w.store.ListQueuedEntries(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, entry := range entries {
		if !w.guard.Allow(ctx, sendRateKeyPrefix+entry.UserID, w.sendLimit, w.sendWindow) {
			metrics.IncrementCounter("queue_rate_limited_total", nil, "Queued entries deferred by the rate limit")
			continue
		}

		subject := entry.Payload["subject"]
		body := entry.Payload["content"]
		providerMsgID, sendErr := w.sender.Send(ctx, entry.Channel, entry.Destination, subject, body)
		if sendErr != nil {
			code := string(apperrors.GetCode(sendErr))
			detail := sendErr.Error()
			if err := w.store.UpdateOutboxStatus(ctx, entry.ID, models.DeliveryStatusFailed, nil, &code, &detail); err != nil {
				w.logger.WithError(err).WithField("outbox_id", entry.ID).Error("Failed to mark queued entry failed")
			}
			metrics.IncrementCounter("queue_send_failed_total", map[string]string{"channel": string(entry.Channel)}, "Queued entries that failed at the provider")
			continue
		}

		if err := w.store.UpdateOutboxStatus(ctx, entry.ID, models.DeliveryStatusSent, &providerMsgID, nil, nil); err != nil {
			if errors.Is(err, database.ErrStatusRegression) {
				continue
			}
			w.logger.WithError(err).WithFields(logrus.Fields{
				"outbox_id":       entry.ID,
				"provider_msg_id": providerMsgID,
			}).Error("Queued message sent but status update failed, manual reconciliation needed")
			continue
		}

		sent++
		metrics.IncrementCounter("queue_sent_total", map[string]string{"channel": string(entry.Channel)}, "Queued entries delivered to a provider")
	}

	return sent, nil
}
