// Package scheduler implements the background maintenance jobs for the
// Wayfarer billing service.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"wayfarer/internal/types"
)

// defaultSweepInterval is how often the retention sweep runs.
const defaultSweepInterval = time.Hour

// EventPruner defines the database operation the sweeper needs.
type EventPruner interface {
	// PruneOlderThan deletes processed-event rows applied before cutoff and
	// returns the number of rows removed.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically prunes the processed-event log. The log only needs to
// cover the provider's redelivery window, so rows past the retention period
// are dead weight.
type Sweeper struct {
	events    EventPruner
	retention time.Duration
	interval  time.Duration
	clock     types.Clock
	logger    *slog.Logger
}

// SweeperConfig holds the dependencies and tuning for a Sweeper.
type SweeperConfig struct {
	Events EventPruner
	// Retention is how long processed-event rows are kept.
	Retention time.Duration
	// Interval overrides the sweep cadence; zero means the default (1h).
	Interval time.Duration
	Clock    types.Clock
	Logger   *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		events:    cfg.Events,
		retention: cfg.Retention,
		interval:  interval,
		clock:     clock,
		logger:    logger,
	}
}

// Run executes sweeps on the configured interval until the context is
// cancelled. It returns the context's error so it slots into an errgroup.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "retention sweeper started",
		"interval", s.interval,
		"retention", s.retention,
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "retention sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single prune pass. Failures are logged and swallowed; the
// next tick retries and a missed sweep only delays cleanup.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := s.clock.Now().Add(-s.retention)

	pruned, err := s.events.PruneOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "event log prune failed",
			"cutoff", cutoff,
			"error", err,
		)
		return
	}

	if pruned > 0 {
		s.logger.InfoContext(ctx, "pruned processed events",
			"count", pruned,
			"cutoff", cutoff,
		)
	}
}
