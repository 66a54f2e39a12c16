package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper runs one reminder pass. *ReminderEngine satisfies it.
type Sweeper interface {
	RunSweep(ctx context.Context) (int, error)
}

// Scheduler triggers reminder sweeps on a fixed interval.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *logrus.Logger

	stopCh chan struct{}
	doneCh chan struct{}
	mu     sync.Mutex
	active bool
}

func NewScheduler(sweeper Sweeper, interval time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the sweep loop. It is a no-op if the scheduler is already
// running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.active = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run(ctx)
	s.logger.WithField("interval", s.interval.String()).Info("Reminder scheduler started")
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	s.logger.Info("Reminder scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			processed, err := s.sweeper.RunSweep(ctx)
			if err != nil {
				s.logger.WithError(err).Error("Reminder sweep failed")
				continue
			}
			s.logger.WithFields(logrus.Fields{
				"processed": processed,
				"duration":  time.Since(start).String(),
			}).Info("Reminder sweep completed")
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
