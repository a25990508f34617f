package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"redtrack/internal/tracker"
)

// Scheduler drives periodic polls for one account. It polls once
// immediately on Start and then on the configured cadence; a failed poll is
// logged and retried on the next tick.
type Scheduler struct {
	cron    *cron.Cron
	service *tracker.TrackerService
	logger  tracker.Logger
}

// NewScheduler creates a Scheduler over the tracker service.
func NewScheduler(service *tracker.TrackerService, logger tracker.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		service: service,
		logger:  logger,
	}
}

// Start begins polling the account every intervalMinutes. It returns after
// scheduling; polls run on the cron's goroutine until Stop.
func (s *Scheduler) Start(ctx context.Context, account string, intervalMinutes int) error {
	if intervalMinutes <= 0 {
		return fmt.Errorf("poll interval must be positive, got %d", intervalMinutes)
	}

	poll := func() {
		if _, err := s.service.Poll(ctx, account); err != nil {
			s.logger.Error("poll failed", "account", account, "error", err)
		}
	}

	// First cycle runs right away.
	poll()

	spec := fmt.Sprintf("@every %dm", intervalMinutes)
	if _, err := s.cron.AddFunc(spec, poll); err != nil {
		return fmt.Errorf("scheduling polls: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "account", account, "interval_minutes", intervalMinutes)
	return nil
}

// Stop halts the schedule and waits for a running poll to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
