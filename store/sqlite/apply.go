package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ballasthq/ballast"
)

// liteTx adapts a database/sql transaction to ballast.Tx.
type liteTx struct {
	tx *sql.Tx
}

// Exec runs a parameterized statement, for queue providers.
func (t *liteTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

// Commit commits the batch transaction.
func (t *liteTx) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

// Rollback discards the batch transaction.
func (t *liteTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback()
}

// Apply interprets one command as SQL. SQLite has no writable CTEs, so
// set-job-state runs as two statements; the surrounding transaction
// keeps the pair indivisible.
func (t *liteTx) Apply(ctx context.Context, cmd ballast.Command) error {
	var err error

	switch c := cmd.(type) {
	case ballast.JobExpire:
		_, err = t.tx.ExecContext(ctx,
			`UPDATE ballast_jobs SET expire_at = ? WHERE id = ?`,
			c.ExpireAt.UTC(), c.JobID)

	case ballast.JobPersist:
		_, err = t.tx.ExecContext(ctx,
			`UPDATE ballast_jobs SET expire_at = NULL WHERE id = ?`,
			c.JobID)

	case ballast.JobSetState:
		err = t.setJobState(ctx, c)

	case ballast.StateAdd:
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO ballast_job_states (job_id, name, reason, data, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			c.JobID, c.Name, nullIfEmpty(c.Reason), c.Data, c.CreatedAt.UTC())

	case ballast.QueueAdd:
		_, err = t.tx.ExecContext(ctx,
			`INSERT INTO ballast_jobqueue (queue, job_id) VALUES (?, ?)`,
			c.Queue, c.JobID)

	case ballast.CounterAdd:
		_, err = t.tx.ExecContext(ctx,
			`INSERT INTO ballast_counters (key, value, expire_at) VALUES (?, ?, ?)`,
			c.Key, c.Delta, utcOrNil(c.ExpireAt))

	case ballast.SetAdd:
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO ballast_sets (key, value, score)
			VALUES (?, ?, ?)
			ON CONFLICT (key, value) DO UPDATE SET score = excluded.score`,
			c.Key, c.Value, c.Score)

	case ballast.SetAddRange:
		err = t.addRangeToSet(ctx, c)

	case ballast.SetRemove:
		_, err = t.tx.ExecContext(ctx,
			`DELETE FROM ballast_sets WHERE key = ? AND value = ?`,
			c.Key, c.Value)

	case ballast.SetExpire:
		_, err = t.tx.ExecContext(ctx,
			`UPDATE ballast_sets SET expire_at = ? WHERE key = ?`,
			c.ExpireAt.UTC(), c.Key)

	case ballast.SetPersist:
		_, err = t.tx.ExecContext(ctx,
			`UPDATE ballast_sets SET expire_at = NULL WHERE key = ?`,
			c.Key)

	case ballast.SetDelete:
		_, err = t.tx.ExecContext(ctx,
			`DELETE FROM ballast_sets WHERE key = ?`,
			c.Key)

	case ballast.ListInsert:
		_, err = t.tx.ExecContext(ctx,
			`INSERT INTO ballast_lists (key, value) VALUES (?, ?)`,
			c.Key, c.Value)

	case ballast.ListRemove:
		_, err = t.tx.ExecContext(ctx,
			`DELETE FROM ballast_lists WHERE key = ? AND value = ?`,
			c.Key, c.Value)

	case ballast.ListTrim:
		// Position is 1-based over insertion order; the command bounds are
		// 0-based inclusive, hence the +1 shift.
		_, err = t.tx.ExecContext(ctx, `
			DELETE FROM ballast_lists
			WHERE id IN (
				SELECT id FROM (
					SELECT id, ROW_NUMBER() OVER (ORDER BY id ASC) AS pos
					FROM ballast_lists
					WHERE key = ?
				)
				WHERE pos < ? OR pos > ?
			)`,
			c.Key, c.KeepFrom+1, c.KeepTo+1)

	case ballast.ListExpire:
		_, err = t.tx.ExecContext(ctx,
			`UPDATE ballast_lists SET expire_at = ? WHERE key = ?`,
			c.ExpireAt.UTC(), c.Key)

	case ballast.ListPersist:
		_, err = t.tx.ExecContext(ctx,
			`UPDATE ballast_lists SET expire_at = NULL WHERE key = ?`,
			c.Key)

	case ballast.HashSetRange:
		err = t.setRangeInHash(ctx, c)

	case ballast.HashExpire:
		_, err = t.tx.ExecContext(ctx,
			`UPDATE ballast_hashes SET expire_at = ? WHERE key = ?`,
			c.ExpireAt.UTC(), c.Key)

	case ballast.HashPersist:
		_, err = t.tx.ExecContext(ctx,
			`UPDATE ballast_hashes SET expire_at = NULL WHERE key = ?`,
			c.Key)

	case ballast.HashDelete:
		_, err = t.tx.ExecContext(ctx,
			`DELETE FROM ballast_hashes WHERE key = ?`,
			c.Key)

	default:
		return fmt.Errorf("ballast/sqlite: unknown command %T", cmd)
	}

	if err != nil {
		return fmt.Errorf("ballast/sqlite: %s: %w", cmd.Kind(), err)
	}
	return nil
}

// setJobState inserts the history row, then repoints the job at it.
func (t *liteTx) setJobState(ctx context.Context, c ballast.JobSetState) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO ballast_job_states (job_id, name, reason, data, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.JobID, c.Name, nullIfEmpty(c.Reason), c.Data, c.CreatedAt.UTC())
	if err != nil {
		return err
	}

	stateID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx,
		`UPDATE ballast_jobs SET state_id = ?, state_name = ? WHERE id = ?`,
		stateID, c.Name, c.JobID)
	return err
}

// addRangeToSet upserts all values in a single multi-row statement.
func (t *liteTx) addRangeToSet(ctx context.Context, c ballast.SetAddRange) error {
	if len(c.Values) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO ballast_sets (key, value, score) VALUES `)
	args := make([]any, 0, len(c.Values)*2)
	for i, v := range c.Values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, 0)")
		args = append(args, c.Key, v)
	}
	sb.WriteString(` ON CONFLICT (key, value) DO UPDATE SET score = excluded.score`)

	_, err := t.tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// setRangeInHash upserts all fields in a single multi-row statement.
func (t *liteTx) setRangeInHash(ctx context.Context, c ballast.HashSetRange) error {
	if len(c.Fields) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO ballast_hashes (key, field, value) VALUES `)
	args := make([]any, 0, len(c.Fields)*3)
	first := true
	for f, v := range c.Fields {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString("(?, ?, ?)")
		args = append(args, c.Key, f, v)
	}
	sb.WriteString(` ON CONFLICT (key, field) DO UPDATE SET value = excluded.value`)

	_, err := t.tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// utcOrNil normalizes an optional timestamp for storage.
func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// nullIfEmpty maps an absent reason to SQL NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
