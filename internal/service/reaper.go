package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/banditlab/internal/repository"
)

const staleReason = "interrupted: run did not finish"

// RunReaper fails runs left in the running state, for example by a restart.
// Runs are never resumed.
type RunReaper struct {
	runs     repository.RunRepository
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewRunReaper creates a RunReaper that fails runs older than maxAge.
func NewRunReaper(runs repository.RunRepository, maxAge, interval time.Duration) *RunReaper {
	return &RunReaper{runs: runs, maxAge: maxAge, interval: interval, now: time.Now}
}

// Start reaps once immediately, then on every interval until ctx is done.
func (r *RunReaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("maxAge", r.maxAge).Dur("interval", r.interval).Msg("Run reaper started")
	r.Reap(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Run reaper stopped")
			return
		case <-ticker.C:
			r.Reap(ctx)
		}
	}
}

// Reap fails stale runs once and returns how many were affected.
func (r *RunReaper) Reap(ctx context.Context) int64 {
	n, err := r.runs.FailStale(ctx, r.now().Add(-r.maxAge), staleReason)
	if err != nil {
		log.Error().Err(err).Msg("Failed to reap stale runs")
		return 0
	}
	if n > 0 {
		log.Warn().Int64("count", n).Msg("Reaped stale runs")
	}
	return n
}
