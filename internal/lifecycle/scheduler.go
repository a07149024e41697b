package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval is the batch cadence between lifecycle passes.
const DefaultInterval = 5 * time.Minute

// Scheduler runs lifecycle passes on a fixed cadence.
type Scheduler struct {
	tracker  *Tracker
	cron     *cron.Cron
	interval time.Duration
}

// NewScheduler creates a scheduler for the tracker. interval <= 0 selects
// the default cadence.
func NewScheduler(tracker *Tracker, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		tracker:  tracker,
		cron:     cron.New(),
		interval: interval,
	}
}

// Start begins periodic passes. The first pass runs on the first tick, not
// immediately. Passes run until Stop or until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		result, err := s.tracker.RunOnce(ctx)
		if err != nil {
			log.Printf("Warning: lifecycle pass failed: %v", err)
			return
		}
		if result.Processed > 0 {
			log.Printf("lifecycle pass: %d processed, %d closed, %d in progress, %d pending closure, %d stale reminders",
				result.Processed, result.Closed, result.InProgress, result.PendingClosure, result.StaleReminders)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule lifecycle pass: %w", err)
	}

	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
	return nil
}

// Stop halts scheduling. In-flight passes run to completion.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
