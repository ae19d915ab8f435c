package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ballasthq/ballast"
	"github.com/ballasthq/ballast/store/sqlite"
)

func setupTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "ballast.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedJob(t *testing.T, s *sqlite.Store, id string) {
	t.Helper()
	if _, err := s.DB().ExecContext(context.Background(),
		`INSERT INTO ballast_jobs (id) VALUES (?)`, id); err != nil {
		t.Fatalf("seed job: %v", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestCommitBatch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "job-1")

	tx := ballast.NewTransaction(s)
	ops := []func() error{
		func() error { return tx.IncrementCounter(ctx, "stats") },
		func() error { return tx.IncrementCounter(ctx, "stats") },
		func() error { return tx.DecrementCounter(ctx, "stats") },
		func() error { return tx.AddToSetWithScore(ctx, "schedule", "job-1", 1.5) },
		func() error { return tx.AddToSetWithScore(ctx, "schedule", "job-1", 9.0) },
		func() error { return tx.AddRangeToSet(ctx, "batch", []string{"x", "y", "x"}) },
		func() error { return tx.SetRangeInHash(ctx, "server:1", map[string]string{"queues": "default", "workers": "4"}) },
		func() error { return tx.AddToQueue(ctx, "default", "job-1") },
		func() error { return tx.ExpireJob(ctx, "job-1", time.Hour) },
	}
	for i, op := range ops {
		if err := op(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var sum int64
	if err := s.DB().QueryRowContext(ctx,
		`SELECT COALESCE(SUM(value), 0) FROM ballast_counters WHERE key = 'stats'`).Scan(&sum); err != nil {
		t.Fatalf("sum counters: %v", err)
	}
	if sum != 1 {
		t.Fatalf("counter sum = %d, want 1", sum)
	}

	var rows int
	var score float64
	if err := s.DB().QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(score) FROM ballast_sets WHERE key = 'schedule' AND value = 'job-1'`).Scan(&rows, &score); err != nil {
		t.Fatalf("set rows: %v", err)
	}
	if rows != 1 || score != 9.0 {
		t.Fatalf("set upsert: rows=%d score=%v, want 1 row with score 9", rows, score)
	}

	var batchRows int
	if err := s.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ballast_sets WHERE key = 'batch'`).Scan(&batchRows); err != nil {
		t.Fatalf("batch rows: %v", err)
	}
	if batchRows != 2 {
		t.Fatalf("batch set rows = %d, want 2", batchRows)
	}

	var workers string
	if err := s.DB().QueryRowContext(ctx,
		`SELECT value FROM ballast_hashes WHERE key = 'server:1' AND field = 'workers'`).Scan(&workers); err != nil {
		t.Fatalf("hash field: %v", err)
	}
	if workers != "4" {
		t.Fatalf("hash field workers = %q, want 4", workers)
	}

	var queued string
	if err := s.DB().QueryRowContext(ctx,
		`SELECT job_id FROM ballast_jobqueue WHERE queue = 'default'`).Scan(&queued); err != nil {
		t.Fatalf("queue row: %v", err)
	}
	if queued != "job-1" {
		t.Fatalf("queued job = %q, want job-1", queued)
	}
}

func TestSetJobState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "job-2")

	tx := ballast.NewTransaction(s)
	if err := tx.SetJobState(ctx, "job-2", testState{name: "processing", reason: "worker picked up"}); err != nil {
		t.Fatalf("set job state: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var stateName string
	var stateID int64
	if err := s.DB().QueryRowContext(ctx,
		`SELECT state_name, state_id FROM ballast_jobs WHERE id = 'job-2'`).Scan(&stateName, &stateID); err != nil {
		t.Fatalf("read job: %v", err)
	}
	if stateName != "processing" {
		t.Fatalf("state name = %q, want processing", stateName)
	}

	var histName string
	if err := s.DB().QueryRowContext(ctx,
		`SELECT name FROM ballast_job_states WHERE id = ? AND job_id = 'job-2'`, stateID).Scan(&histName); err != nil {
		t.Fatalf("read history row: %v", err)
	}
	if histName != "processing" {
		t.Fatalf("history name = %q, want processing", histName)
	}
}

func TestTrimListWindow(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tx := ballast.NewTransaction(s)
	for _, v := range []string{"a", "b", "c", "d", "e"} {
		if err := tx.InsertToList(ctx, "trimmed", v); err != nil {
			t.Fatalf("insert %q: %v", v, err)
		}
	}
	if err := tx.TrimList(ctx, "trimmed", 1, 3); err != nil {
		t.Fatalf("trim: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rows, err := s.DB().QueryContext(ctx,
		`SELECT value FROM ballast_lists WHERE key = 'trimmed' ORDER BY id ASC`)
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	defer rows.Close()

	var got []string
	for rows.Next() {
		var v string
		if scanErr := rows.Scan(&v); scanErr != nil {
			t.Fatalf("scan: %v", scanErr)
		}
		got = append(got, v)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}

	want := []string{"b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("list after trim = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list after trim = %v, want %v", got, want)
		}
	}
}

func TestFailedApplyRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Force an apply failure mid-batch by dropping the queue table.
	if _, err := s.DB().ExecContext(ctx, `DROP TABLE ballast_jobqueue`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	tx := ballast.NewTransaction(s)
	if err := tx.IncrementCounter(ctx, "stats"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := tx.AddToQueue(ctx, "default", "job-1"); err != nil {
		t.Fatalf("add to queue: %v", err)
	}
	if err := tx.Commit(ctx); err == nil {
		t.Fatal("commit succeeded with missing table")
	}

	var rows int
	if err := s.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ballast_counters`).Scan(&rows); err != nil {
		t.Fatalf("read counters: %v", err)
	}
	if rows != 0 {
		t.Fatalf("counter rows after failed commit = %d, want 0", rows)
	}
}

func TestMaintenance(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tx := ballast.NewTransaction(s)
	if err := tx.IncrementCounterWithTTL(ctx, "ephemeral", -time.Minute); err != nil {
		t.Fatalf("increment: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := tx.IncrementCounter(ctx, "kept"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	removed, err := s.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("swept %d rows, want 1", removed)
	}

	folded, err := s.AggregateCounters(ctx, 1000)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if folded != 3 {
		t.Fatalf("folded %d rows, want 3", folded)
	}

	var rows int
	var sum int64
	if err := s.DB().QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(value), 0) FROM ballast_counters WHERE key = 'kept'`).Scan(&rows, &sum); err != nil {
		t.Fatalf("read counters: %v", err)
	}
	if rows != 1 || sum != 3 {
		t.Fatalf("after aggregate: rows=%d sum=%d, want 1 row summing 3", rows, sum)
	}
}

func TestAggregateKeepsPermanentDeltas(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tx := ballast.NewTransaction(s)
	if err := tx.IncrementCounter(ctx, "stats"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := tx.IncrementCounterWithTTL(ctx, "stats", time.Hour); err != nil {
		t.Fatalf("increment with ttl: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := s.AggregateCounters(ctx, 10); err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	// The fold keeps expiring and never-expiring deltas apart.
	var permanent int
	if err := s.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ballast_counters WHERE key = 'stats' AND expire_at IS NULL`).Scan(&permanent); err != nil {
		t.Fatalf("read counters: %v", err)
	}
	if permanent != 1 {
		t.Fatalf("never-expiring rows after fold = %d, want 1", permanent)
	}

	if _, err := s.SweepExpired(ctx, time.Now().UTC().Add(2*time.Hour)); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	var sum int64
	if err := s.DB().QueryRowContext(ctx,
		`SELECT COALESCE(SUM(value), 0) FROM ballast_counters WHERE key = 'stats'`).Scan(&sum); err != nil {
		t.Fatalf("sum counters: %v", err)
	}
	if sum != 1 {
		t.Fatalf("counter after fold and sweep = %d, want 1 (permanent delta kept)", sum)
	}
}

func TestSweepBoundaryIsInclusive(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Second)
	if _, err := s.DB().ExecContext(ctx,
		`INSERT INTO ballast_counters (key, value, expire_at) VALUES (?, ?, ?)`,
		"edge", 1, at); err != nil {
		t.Fatalf("insert counter: %v", err)
	}

	removed, err := s.SweepExpired(ctx, at)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("swept %d rows at the exact expiry instant, want 1", removed)
	}
}

type testState struct {
	name   string
	reason string
	data   map[string]string
}

func (s testState) StateName() string            { return s.name }
func (s testState) StateReason() string          { return s.reason }
func (s testState) StateData() map[string]string { return s.data }
