package changefeed

import (
	"sync"
	"testing"
	"time"

	"courier/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeed() *Feed {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewFeed(logger)
}

func change(userID, outboxID string, status models.DeliveryStatus) models.DeliveryChange {
	return models.DeliveryChange{
		OutboxID:        outboxID,
		UserID:          userID,
		Status:          status,
		StatusUpdatedAt: time.Now().UTC(),
	}
}

func TestFeedDeliversToOwner(t *testing.T) {
	feed := newTestFeed()

	var received []models.DeliveryChange
	sub := feed.Subscribe("user-1", func(c models.DeliveryChange) {
		received = append(received, c)
	})
	defer sub.Close()

	feed.Publish(change("user-1", "out-1", models.DeliveryStatusSent))

	require.Len(t, received, 1)
	assert.Equal(t, "out-1", received[0].OutboxID)
}

func TestFeedFiltersByOwner(t *testing.T) {
	feed := newTestFeed()

	var received []models.DeliveryChange
	sub := feed.Subscribe("user-1", func(c models.DeliveryChange) {
		received = append(received, c)
	})
	defer sub.Close()

	feed.Publish(change("user-2", "out-other", models.DeliveryStatusSent))
	assert.Empty(t, received, "subscriber must never observe another account's rows")
}

func TestFeedMultipleSubscribers(t *testing.T) {
	feed := newTestFeed()

	var a, b int
	subA := feed.Subscribe("user-1", func(models.DeliveryChange) { a++ })
	subB := feed.Subscribe("user-1", func(models.DeliveryChange) { b++ })
	defer subA.Close()
	defer subB.Close()

	feed.Publish(change("user-1", "out-1", models.DeliveryStatusSent))
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestSubscriptionClose(t *testing.T) {
	feed := newTestFeed()

	var received int
	sub := feed.Subscribe("user-1", func(models.DeliveryChange) { received++ })
	assert.Equal(t, 1, feed.SubscriberCount())

	sub.Close()
	sub.Close() // repeat close is a no-op
	assert.Equal(t, 0, feed.SubscriberCount())

	feed.Publish(change("user-1", "out-1", models.DeliveryStatusSent))
	assert.Zero(t, received)
}

func TestFeedSameRowCommitOrder(t *testing.T) {
	feed := newTestFeed()

	var statuses []models.DeliveryStatus
	sub := feed.Subscribe("user-1", func(c models.DeliveryChange) {
		statuses = append(statuses, c.Status)
	})
	defer sub.Close()

	feed.Publish(change("user-1", "out-1", models.DeliveryStatusQueued))
	feed.Publish(change("user-1", "out-1", models.DeliveryStatusSent))
	feed.Publish(change("user-1", "out-1", models.DeliveryStatusDelivered))

	assert.Equal(t, []models.DeliveryStatus{
		models.DeliveryStatusQueued,
		models.DeliveryStatusSent,
		models.DeliveryStatusDelivered,
	}, statuses)
}

func TestFeedConcurrentSubscribeAndPublish(t *testing.T) {
	feed := newTestFeed()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := feed.Subscribe("user-1", func(models.DeliveryChange) {})
			feed.Publish(change("user-1", "out-1", models.DeliveryStatusSent))
			sub.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, feed.SubscriberCount())
}
