// Package maintain runs periodic storage upkeep: sweeping expired rows
// and folding counter deltas. Backends that need upkeep implement
// Maintainer; backends with native expiry, like Redis, do not.
package maintain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Maintainer is the upkeep surface a backing store may expose.
type Maintainer interface {
	// SweepExpired removes rows whose expiry has passed, returning the
	// number of rows removed.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)

	// AggregateCounters folds counter delta rows into one row per key,
	// returning the number of rows folded.
	AggregateCounters(ctx context.Context, limit int) (int64, error)
}

const (
	defaultSchedule     = "@every 1m"
	defaultCounterBatch = 1000
)

// Runner executes upkeep passes on a cron schedule.
type Runner struct {
	target       Maintainer
	schedule     cron.Schedule
	counterBatch int
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures the Runner.
type Option func(*Runner)

// WithCounterBatch caps how many counter rows one pass folds.
func WithCounterBatch(n int) Option {
	return func(r *Runner) { r.counterBatch = n }
}

// WithLogger sets the logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a runner for target. The schedule spec takes standard
// cron syntax or an @every interval, e.g. "@every 30s".
func NewRunner(target Maintainer, spec string, opts ...Option) (*Runner, error) {
	if spec == "" {
		spec = defaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("ballast/maintain: parse schedule %q: %w", spec, err)
	}

	r := &Runner{
		target:       target,
		schedule:     schedule,
		counterBatch: defaultCounterBatch,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes upkeep passes until ctx is canceled. A failing pass is
// logged and the schedule keeps going.
func (r *Runner) Run(ctx context.Context) error {
	for {
		next := r.schedule.Next(r.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("maintenance pass failed", "error", err)
		}
	}
}

// RunOnce executes a single upkeep pass.
func (r *Runner) RunOnce(ctx context.Context) error {
	start := r.now()

	swept, err := r.target.SweepExpired(ctx, start)
	if err != nil {
		return fmt.Errorf("ballast/maintain: sweep expired: %w", err)
	}

	folded, err := r.target.AggregateCounters(ctx, r.counterBatch)
	if err != nil {
		return fmt.Errorf("ballast/maintain: aggregate counters: %w", err)
	}

	r.logger.Debug("maintenance pass complete",
		"swept", swept,
		"folded", folded,
		"elapsed", time.Since(start))
	return nil
}
