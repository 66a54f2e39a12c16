package changefeed

import (
	"sync"

	"courier/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Feed fans outbox mutations out to live subscribers. Delivery is
// best-effort and at-least-once: subscribers must treat every event as a
// full snapshot and handle repeats idempotently. Events for the same row
// arrive in commit order because Publish is invoked from the store's
// serialized write path; no ordering holds across rows.
type Feed struct {
	mu   sync.RWMutex
	subs map[string]*Subscription

	logger *logrus.Logger
}

// Subscription is a live change-feed registration. Close is safe to call
// more than once.
type Subscription struct {
	id     string
	userID string
	fn     func(models.DeliveryChange)

	feed *Feed
	once sync.Once
}

func NewFeed(logger *logrus.Logger) *Feed {
	return &Feed{
		subs:   make(map[string]*Subscription),
		logger: logger,
	}
}

// Subscribe registers fn for every change owned by userID. Filtering happens
// here, server-side, so a subscriber never observes another account's rows.
func (f *Feed) Subscribe(userID string, fn func(models.DeliveryChange)) *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		userID: userID,
		fn:     fn,
		feed:   f,
	}

	f.mu.Lock()
	f.subs[sub.id] = sub
	f.mu.Unlock()

	f.logger.WithFields(logrus.Fields{
		"subscription": sub.id,
		"user":         userID,
	}).Debug("Change feed subscription opened")

	return sub
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s.id)
		s.feed.mu.Unlock()
	})
}

// Publish delivers a change to every matching subscriber. Callbacks run on
// the publishing goroutine over a snapshot of the subscriber set; a
// subscriber added mid-publish sees only later events.
func (f *Feed) Publish(change models.DeliveryChange) {
	f.mu.RLock()
	matched := make([]*Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		if sub.userID == change.UserID {
			matched = append(matched, sub)
		}
	}
	f.mu.RUnlock()

	for _, sub := range matched {
		sub.fn(change)
	}
}

// SubscriberCount reports the number of open subscriptions.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
