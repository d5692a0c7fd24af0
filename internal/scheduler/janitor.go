// Package scheduler runs background maintenance for the API process.
//
// The Janitor periodically purges idle sessions so memory and the
// sessions_active gauge stay accurate even when nobody touches expired ids.
// Each pass takes an explicit reference time, which keeps it deterministic
// under test.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when no interval is configured.
const DefaultSweepInterval = 5 * time.Minute

// SessionSweeper removes idle sessions as of now and reports how many were
// dropped.
type SessionSweeper interface {
	Sweep(now time.Time) int
}

// Janitor sweeps sessions on a fixed interval.
type Janitor struct {
	sweeper  SessionSweeper
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewJanitor creates a Janitor. A non-positive interval selects
// DefaultSweepInterval.
func NewJanitor(sweeper SessionSweeper, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// RunOnce performs a single sweep at now.
func (j *Janitor) RunOnce(now time.Time) int {
	removed := j.sweeper.Sweep(now)
	if removed > 0 {
		j.logger.Info("expired idle sessions", "removed", removed)
	} else {
		j.logger.Debug("session sweep found nothing to expire")
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled. It blocks.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Debug("session janitor started", "interval", j.interval)
	for {
		select {
		case <-ctx.Done():
			j.logger.Debug("session janitor stopped")
			return
		case <-ticker.C:
			j.RunOnce(j.now())
		}
	}
}

// Start runs the janitor in a goroutine. The returned function stops it and
// waits for the loop to exit.
func (j *Janitor) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		j.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
