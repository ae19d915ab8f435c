package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ballasthq/ballast"
)

// pgTx adapts a pgx transaction to ballast.Tx.
type pgTx struct {
	tx pgx.Tx
}

// Exec runs a parameterized statement, for queue providers.
func (t *pgTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.Exec(ctx, query, args...)
	return err
}

// Commit commits the batch transaction.
func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback discards the batch transaction.
func (t *pgTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// Apply interprets one command as a single SQL statement.
func (t *pgTx) Apply(ctx context.Context, cmd ballast.Command) error {
	var err error

	switch c := cmd.(type) {
	case ballast.JobExpire:
		_, err = t.tx.Exec(ctx,
			`UPDATE ballast_jobs SET expire_at = $2 WHERE id = $1`,
			c.JobID, c.ExpireAt)

	case ballast.JobPersist:
		_, err = t.tx.Exec(ctx,
			`UPDATE ballast_jobs SET expire_at = NULL WHERE id = $1`,
			c.JobID)

	case ballast.JobSetState:
		// Insert the history row and repoint the job in one statement, so
		// a job never names a state that is not in its history.
		_, err = t.tx.Exec(ctx, `
			WITH s AS (
				INSERT INTO ballast_job_states (job_id, name, reason, data, created_at)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id
			)
			UPDATE ballast_jobs
			SET state_id = s.id, state_name = $2
			FROM s
			WHERE ballast_jobs.id = $1`,
			c.JobID, c.Name, nullIfEmpty(c.Reason), c.Data, c.CreatedAt)

	case ballast.StateAdd:
		_, err = t.tx.Exec(ctx, `
			INSERT INTO ballast_job_states (job_id, name, reason, data, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			c.JobID, c.Name, nullIfEmpty(c.Reason), c.Data, c.CreatedAt)

	case ballast.QueueAdd:
		_, err = t.tx.Exec(ctx,
			`INSERT INTO ballast_jobqueue (queue, job_id) VALUES ($1, $2)`,
			c.Queue, c.JobID)

	case ballast.CounterAdd:
		_, err = t.tx.Exec(ctx,
			`INSERT INTO ballast_counters (key, value, expire_at) VALUES ($1, $2, $3)`,
			c.Key, c.Delta, c.ExpireAt)

	case ballast.SetAdd:
		_, err = t.tx.Exec(ctx, `
			INSERT INTO ballast_sets (key, value, score)
			VALUES ($1, $2, $3)
			ON CONFLICT (key, value) DO UPDATE SET score = EXCLUDED.score`,
			c.Key, c.Value, c.Score)

	case ballast.SetAddRange:
		// DISTINCT: ON CONFLICT DO UPDATE cannot touch a row twice in one
		// statement, and the input may repeat a value.
		_, err = t.tx.Exec(ctx, `
			INSERT INTO ballast_sets (key, value, score)
			SELECT DISTINCT $1, v, 0 FROM unnest($2::text[]) AS t(v)
			ON CONFLICT (key, value) DO UPDATE SET score = EXCLUDED.score`,
			c.Key, c.Values)

	case ballast.SetRemove:
		_, err = t.tx.Exec(ctx,
			`DELETE FROM ballast_sets WHERE key = $1 AND value = $2`,
			c.Key, c.Value)

	case ballast.SetExpire:
		_, err = t.tx.Exec(ctx,
			`UPDATE ballast_sets SET expire_at = $2 WHERE key = $1`,
			c.Key, c.ExpireAt)

	case ballast.SetPersist:
		_, err = t.tx.Exec(ctx,
			`UPDATE ballast_sets SET expire_at = NULL WHERE key = $1`,
			c.Key)

	case ballast.SetDelete:
		_, err = t.tx.Exec(ctx,
			`DELETE FROM ballast_sets WHERE key = $1`,
			c.Key)

	case ballast.ListInsert:
		_, err = t.tx.Exec(ctx,
			`INSERT INTO ballast_lists (key, value) VALUES ($1, $2)`,
			c.Key, c.Value)

	case ballast.ListRemove:
		_, err = t.tx.Exec(ctx,
			`DELETE FROM ballast_lists WHERE key = $1 AND value = $2`,
			c.Key, c.Value)

	case ballast.ListTrim:
		// Position is 1-based over insertion order; the command bounds are
		// 0-based inclusive, hence the +1 shift.
		_, err = t.tx.Exec(ctx, `
			DELETE FROM ballast_lists
			USING (
				SELECT id, row_number() OVER (ORDER BY id ASC) AS pos
				FROM ballast_lists
				WHERE key = $1
			) ranked
			WHERE ballast_lists.id = ranked.id
			  AND (ranked.pos < $2 OR ranked.pos > $3)`,
			c.Key, c.KeepFrom+1, c.KeepTo+1)

	case ballast.ListExpire:
		_, err = t.tx.Exec(ctx,
			`UPDATE ballast_lists SET expire_at = $2 WHERE key = $1`,
			c.Key, c.ExpireAt)

	case ballast.ListPersist:
		_, err = t.tx.Exec(ctx,
			`UPDATE ballast_lists SET expire_at = NULL WHERE key = $1`,
			c.Key)

	case ballast.HashSetRange:
		fields := make([]string, 0, len(c.Fields))
		values := make([]string, 0, len(c.Fields))
		for f, v := range c.Fields {
			fields = append(fields, f)
			values = append(values, v)
		}
		_, err = t.tx.Exec(ctx, `
			INSERT INTO ballast_hashes (key, field, value)
			SELECT $1, f, v FROM unnest($2::text[], $3::text[]) AS t(f, v)
			ON CONFLICT (key, field) DO UPDATE SET value = EXCLUDED.value`,
			c.Key, fields, values)

	case ballast.HashExpire:
		_, err = t.tx.Exec(ctx,
			`UPDATE ballast_hashes SET expire_at = $2 WHERE key = $1`,
			c.Key, c.ExpireAt)

	case ballast.HashPersist:
		_, err = t.tx.Exec(ctx,
			`UPDATE ballast_hashes SET expire_at = NULL WHERE key = $1`,
			c.Key)

	case ballast.HashDelete:
		_, err = t.tx.Exec(ctx,
			`DELETE FROM ballast_hashes WHERE key = $1`,
			c.Key)

	default:
		return fmt.Errorf("ballast/postgres: unknown command %T", cmd)
	}

	if err != nil {
		return fmt.Errorf("ballast/postgres: %s: %w", cmd.Kind(), err)
	}
	return nil
}

// nullIfEmpty maps an absent reason to SQL NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
