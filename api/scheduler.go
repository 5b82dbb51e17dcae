/*
scheduler.go - Automated day rollover

PURPOSE:
  Periodically checks whether a game's region has crossed its daily reset
  and moves the game onto its new day. Pending edits are flushed after each
  check so a long-running server never sits on unwritten rows.

DESIGN:
  - gocron scheduler in singleton mode (a slow check never overlaps the next)
  - Runs once immediately on start, then every CheckInterval
  - Rollover failures are logged; the next tick retries

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRolloverScheduler(tracker, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - tracker/tracker.go: CheckRollover
  - handlers.go: Flush endpoint (manual flush)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
	"github.com/warp/progress-tracker/tracker"
)

// RolloverScheduler moves games onto their new day after each reset.
type RolloverScheduler struct {
	Tracker       *tracker.Tracker
	CheckInterval time.Duration
	Enabled       bool

	logger logrus.FieldLogger
	cron   *gocron.Scheduler
	job    *gocron.Job
	mu     sync.Mutex
}

// NewRolloverScheduler creates a new scheduler.
func NewRolloverScheduler(t *tracker.Tracker, logger logrus.FieldLogger) *RolloverScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RolloverScheduler{
		Tracker:       t,
		CheckInterval: time.Minute,
		Enabled:       true,
		logger:        logger.WithField("component", "scheduler"),
	}
}

// Start begins the scheduler. Starting twice is a no-op.
func (rs *RolloverScheduler) Start() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info("disabled, not starting")
		return nil
	}
	if rs.cron != nil {
		return nil
	}

	cron := gocron.NewScheduler(time.UTC)
	job, err := cron.Every(rs.CheckInterval).SingletonMode().Do(rs.RunNow)
	if err != nil {
		return err
	}
	cron.StartAsync()
	rs.cron, rs.job = cron, job

	rs.logger.WithField("interval", rs.CheckInterval).Info("started")
	return nil
}

// Stop stops the scheduler and flushes whatever is still pending.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cron == nil {
		return
	}
	rs.cron.Stop()
	rs.cron, rs.job = nil, nil
	if err := rs.Tracker.FlushAll(context.Background()); err != nil {
		rs.logger.WithError(err).Warn("flush on stop failed")
	}
	rs.logger.Info("stopped")
}

// RunNow triggers an immediate check (for testing/admin).
func (rs *RolloverScheduler) RunNow() {
	ctx := context.Background()

	rolled, err := rs.Tracker.CheckRollover(ctx)
	if err != nil {
		rs.logger.WithError(err).Warn("rollover check failed")
	}
	if len(rolled) > 0 {
		rs.logger.WithField("games", rolled).Info("rolled over")
	}
	if err := rs.Tracker.FlushAll(ctx); err != nil {
		rs.logger.WithError(err).Warn("flush failed")
	}
}

// NextRunTime returns when the next scheduled check will occur.
func (rs *RolloverScheduler) NextRunTime() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.job == nil {
		return time.Time{}
	}
	return rs.job.NextRun()
}
