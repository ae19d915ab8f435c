package sqlite

import (
	"context"
	"fmt"
	"time"
)

// expiringTables are the collections swept purely by their expire_at column.
var expiringTables = []string{
	"ballast_counters",
	"ballast_sets",
	"ballast_lists",
	"ballast_hashes",
}

// SweepExpired deletes every row whose expire_at has passed. Expired jobs
// take their state history with them. Returns the number of rows removed.
// SQLite allows one writer, so tables are swept sequentially.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	var total int64

	for _, table := range expiringTables {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE expire_at IS NOT NULL AND expire_at <= ?`, table),
			now)
		if err != nil {
			return total, fmt.Errorf("ballast/sqlite: sweep %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	// History rows first, while the expired jobs are still visible.
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM ballast_job_states
		WHERE job_id IN (
			SELECT id FROM ballast_jobs
			WHERE expire_at IS NOT NULL AND expire_at <= ?
		)`, now)
	if err != nil {
		return total, fmt.Errorf("ballast/sqlite: sweep ballast_job_states: %w", err)
	}
	n, _ := res.RowsAffected()
	total += n

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM ballast_jobs WHERE expire_at IS NOT NULL AND expire_at <= ?`, now)
	if err != nil {
		return total, fmt.Errorf("ballast/sqlite: sweep ballast_jobs: %w", err)
	}
	n, _ = res.RowsAffected()
	total += n

	return total, nil
}

// AggregateCounters folds at most limit counter delta rows, preserving each
// key's sum. Never-expiring deltas fold into a row that stays never-expiring;
// expiring deltas fold into a row carrying their latest expiry. Returns the
// number of rows folded. Runs in a transaction so readers never observe a
// partially folded key.
func (s *Store) AggregateCounters(ctx context.Context, limit int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ballast/sqlite: aggregate: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		CREATE TEMPORARY TABLE aggregated AS
		SELECT key, SUM(value) AS value, MAX(expire_at) AS expire_at
		FROM (SELECT key, value, expire_at FROM ballast_counters ORDER BY id ASC LIMIT ?)
		GROUP BY key, (expire_at IS NULL)`, limit)
	if err != nil {
		return 0, fmt.Errorf("ballast/sqlite: aggregate: fold: %w", err)
	}

	delRes, err := tx.ExecContext(ctx, `
		DELETE FROM ballast_counters
		WHERE id IN (SELECT id FROM ballast_counters ORDER BY id ASC LIMIT ?)`, limit)
	if err != nil {
		return 0, fmt.Errorf("ballast/sqlite: aggregate: delete: %w", err)
	}
	folded, _ := delRes.RowsAffected()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ballast_counters (key, value, expire_at)
		SELECT key, value, expire_at FROM aggregated`)
	if err != nil {
		return 0, fmt.Errorf("ballast/sqlite: aggregate: insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE aggregated`); err != nil {
		return 0, fmt.Errorf("ballast/sqlite: aggregate: cleanup: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ballast/sqlite: aggregate: commit: %w", err)
	}
	return folded, nil
}
