package bunstore

import (
	"context"
	"fmt"
	"time"
)

// SweepExpired deletes every row whose expire_at has passed. Expired jobs
// take their state history with them. Returns the number of rows removed.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64

	type target struct {
		name  string
		model any
	}
	targets := []target{
		{"counters", (*counterModel)(nil)},
		{"sets", (*setModel)(nil)},
		{"lists", (*listModel)(nil)},
		{"hashes", (*hashModel)(nil)},
	}

	for _, tgt := range targets {
		res, err := s.db.NewDelete().
			Model(tgt.model).
			Where("expire_at IS NOT NULL AND expire_at <= ?", now).
			Exec(ctx)
		if err != nil {
			return total, fmt.Errorf("ballast/bun: sweep %s: %w", tgt.name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	// History rows first, while the expired jobs are still visible.
	expired := s.db.NewSelect().
		Model((*jobModel)(nil)).
		Column("id").
		Where("expire_at IS NOT NULL AND expire_at <= ?", now)

	res, err := s.db.NewDelete().
		Model((*jobStateModel)(nil)).
		Where("job_id IN (?)", expired).
		Exec(ctx)
	if err != nil {
		return total, fmt.Errorf("ballast/bun: sweep job states: %w", err)
	}
	n, _ := res.RowsAffected()
	total += n

	res, err = s.db.NewDelete().
		Model((*jobModel)(nil)).
		Where("expire_at IS NOT NULL AND expire_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return total, fmt.Errorf("ballast/bun: sweep jobs: %w", err)
	}
	n, _ = res.RowsAffected()
	total += n

	return total, nil
}

// AggregateCounters folds at most limit counter delta rows, preserving each
// key's sum. Never-expiring deltas fold into a row that stays never-expiring;
// expiring deltas fold into a row carrying their latest expiry. Returns the
// number of rows folded. The fold runs as one statement, so concurrent
// readers never observe a partially folded key.
func (s *Store) AggregateCounters(ctx context.Context, limit int) (int64, error) {
	var folded int64
	err := s.db.QueryRowContext(ctx, `
		WITH doomed AS (
			DELETE FROM ballast_counters
			WHERE id IN (SELECT id FROM ballast_counters ORDER BY id ASC LIMIT ?)
			RETURNING key, value, expire_at
		), refolded AS (
			INSERT INTO ballast_counters (key, value, expire_at)
			SELECT key, SUM(value), MAX(expire_at)
			FROM doomed
			GROUP BY key, (expire_at IS NULL)
		)
		SELECT COUNT(*) FROM doomed`,
		limit,
	).Scan(&folded)
	if err != nil {
		return 0, fmt.Errorf("ballast/bun: aggregate counters: %w", err)
	}
	return folded, nil
}
