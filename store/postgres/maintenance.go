package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// expiringTables are the standalone collections with an expire_at column.
// Jobs and their state history are swept together, states first, so an
// expired job never leaves orphaned history rows.
var expiringTables = []string{
	"ballast_counters",
	"ballast_sets",
	"ballast_lists",
	"ballast_hashes",
}

// SweepExpired deletes rows whose expiry is at or before now, sweeping the
// independent collections in parallel. Returns the total rows removed.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)

	for _, table := range expiringTables {
		g.Go(func() error {
			tag, err := s.pool.Exec(ctx, fmt.Sprintf(
				`DELETE FROM %s WHERE expire_at IS NOT NULL AND expire_at <= $1`, table),
				now)
			if err != nil {
				return fmt.Errorf("ballast/postgres: sweep %s: %w", table, err)
			}
			removed.Add(tag.RowsAffected())
			return nil
		})
	}

	g.Go(func() error {
		tag, err := s.pool.Exec(ctx, `
			DELETE FROM ballast_job_states
			WHERE job_id IN (
				SELECT id FROM ballast_jobs
				WHERE expire_at IS NOT NULL AND expire_at <= $1
			)`, now)
		if err != nil {
			return fmt.Errorf("ballast/postgres: sweep ballast_job_states: %w", err)
		}
		removed.Add(tag.RowsAffected())

		tag, err = s.pool.Exec(ctx,
			`DELETE FROM ballast_jobs WHERE expire_at IS NOT NULL AND expire_at <= $1`, now)
		if err != nil {
			return fmt.Errorf("ballast/postgres: sweep ballast_jobs: %w", err)
		}
		removed.Add(tag.RowsAffected())
		return nil
	})

	if err := g.Wait(); err != nil {
		return removed.Load(), err
	}
	return removed.Load(), nil
}

// AggregateCounters folds up to limit counter delta rows, preserving each
// key's sum. Never-expiring deltas fold into a row that stays never-expiring;
// expiring deltas fold into a row carrying their latest expiry, so a later
// sweep removes only what was already doomed. The fold is a single
// writable-CTE statement, so a key's aggregate value is never observable
// mid-fold. Returns the number of delta rows folded.
func (s *Store) AggregateCounters(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}

	var folded int64
	err := s.pool.QueryRow(ctx, `
		WITH doomed AS (
			DELETE FROM ballast_counters
			WHERE id IN (
				SELECT id FROM ballast_counters ORDER BY id ASC LIMIT $1
			)
			RETURNING key, value, expire_at
		),
		refolded AS (
			INSERT INTO ballast_counters (key, value, expire_at)
			SELECT key, SUM(value), MAX(expire_at)
			FROM doomed
			GROUP BY key, (expire_at IS NULL)
			RETURNING 1
		)
		SELECT COUNT(*) FROM doomed`,
		limit,
	).Scan(&folded)
	if err != nil {
		return 0, fmt.Errorf("ballast/postgres: aggregate counters: %w", err)
	}
	return folded, nil
}
