package bunstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/ballasthq/ballast"
)

// bunTx adapts a Bun transaction to ballast.Tx.
type bunTx struct {
	tx bun.Tx
}

// Exec runs a parameterized statement, for queue providers. Placeholders
// follow Bun's ? convention.
func (t *bunTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

// Commit commits the batch transaction.
func (t *bunTx) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

// Rollback discards the batch transaction.
func (t *bunTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback()
}

// Apply interprets one command with Bun's query builders.
func (t *bunTx) Apply(ctx context.Context, cmd ballast.Command) error {
	var err error

	switch c := cmd.(type) {
	case ballast.JobExpire:
		_, err = t.tx.NewUpdate().
			Model((*jobModel)(nil)).
			Set("expire_at = ?", c.ExpireAt).
			Where("id = ?", c.JobID).
			Exec(ctx)

	case ballast.JobPersist:
		_, err = t.tx.NewUpdate().
			Model((*jobModel)(nil)).
			Set("expire_at = NULL").
			Where("id = ?", c.JobID).
			Exec(ctx)

	case ballast.JobSetState:
		err = t.setJobState(ctx, c)

	case ballast.StateAdd:
		m := &jobStateModel{
			JobID:     c.JobID,
			Name:      c.Name,
			Reason:    nullIfEmpty(c.Reason),
			Data:      c.Data,
			CreatedAt: c.CreatedAt,
		}
		_, err = t.tx.NewInsert().Model(m).Exec(ctx)

	case ballast.QueueAdd:
		m := &queueModel{Queue: c.Queue, JobID: c.JobID}
		_, err = t.tx.NewInsert().Model(m).ExcludeColumn("enqueued_at").Exec(ctx)

	case ballast.CounterAdd:
		m := &counterModel{Key: c.Key, Value: c.Delta, ExpireAt: c.ExpireAt}
		_, err = t.tx.NewInsert().Model(m).Exec(ctx)

	case ballast.SetAdd:
		m := &setModel{Key: c.Key, Value: c.Value, Score: c.Score}
		_, err = t.tx.NewInsert().
			Model(m).
			On("CONFLICT (key, value) DO UPDATE").
			Set("score = EXCLUDED.score").
			Exec(ctx)

	case ballast.SetAddRange:
		if len(c.Values) == 0 {
			return nil
		}
		// Deduplicate: ON CONFLICT DO UPDATE cannot touch a row twice in
		// one statement, and the input may repeat a value.
		models := make([]setModel, 0, len(c.Values))
		seen := make(map[string]bool, len(c.Values))
		for _, v := range c.Values {
			if seen[v] {
				continue
			}
			seen[v] = true
			models = append(models, setModel{Key: c.Key, Value: v})
		}
		_, err = t.tx.NewInsert().
			Model(&models).
			On("CONFLICT (key, value) DO UPDATE").
			Set("score = EXCLUDED.score").
			Exec(ctx)

	case ballast.SetRemove:
		_, err = t.tx.NewDelete().
			Model((*setModel)(nil)).
			Where("key = ? AND value = ?", c.Key, c.Value).
			Exec(ctx)

	case ballast.SetExpire:
		_, err = t.tx.NewUpdate().
			Model((*setModel)(nil)).
			Set("expire_at = ?", c.ExpireAt).
			Where("key = ?", c.Key).
			Exec(ctx)

	case ballast.SetPersist:
		_, err = t.tx.NewUpdate().
			Model((*setModel)(nil)).
			Set("expire_at = NULL").
			Where("key = ?", c.Key).
			Exec(ctx)

	case ballast.SetDelete:
		_, err = t.tx.NewDelete().
			Model((*setModel)(nil)).
			Where("key = ?", c.Key).
			Exec(ctx)

	case ballast.ListInsert:
		m := &listModel{Key: c.Key, Value: c.Value}
		_, err = t.tx.NewInsert().Model(m).Exec(ctx)

	case ballast.ListRemove:
		_, err = t.tx.NewDelete().
			Model((*listModel)(nil)).
			Where("key = ? AND value = ?", c.Key, c.Value).
			Exec(ctx)

	case ballast.ListTrim:
		// Position is 1-based over insertion order; the command bounds are
		// 0-based inclusive, hence the +1 shift.
		_, err = t.tx.ExecContext(ctx, `
			DELETE FROM ballast_lists
			USING (
				SELECT id, row_number() OVER (ORDER BY id ASC) AS pos
				FROM ballast_lists
				WHERE key = ?
			) ranked
			WHERE ballast_lists.id = ranked.id
			  AND (ranked.pos < ? OR ranked.pos > ?)`,
			c.Key, c.KeepFrom+1, c.KeepTo+1)

	case ballast.ListExpire:
		_, err = t.tx.NewUpdate().
			Model((*listModel)(nil)).
			Set("expire_at = ?", c.ExpireAt).
			Where("key = ?", c.Key).
			Exec(ctx)

	case ballast.ListPersist:
		_, err = t.tx.NewUpdate().
			Model((*listModel)(nil)).
			Set("expire_at = NULL").
			Where("key = ?", c.Key).
			Exec(ctx)

	case ballast.HashSetRange:
		if len(c.Fields) == 0 {
			return nil
		}
		models := make([]hashModel, 0, len(c.Fields))
		for f, v := range c.Fields {
			models = append(models, hashModel{Key: c.Key, Field: f, Value: v})
		}
		_, err = t.tx.NewInsert().
			Model(&models).
			On("CONFLICT (key, field) DO UPDATE").
			Set("value = EXCLUDED.value").
			Exec(ctx)

	case ballast.HashExpire:
		_, err = t.tx.NewUpdate().
			Model((*hashModel)(nil)).
			Set("expire_at = ?", c.ExpireAt).
			Where("key = ?", c.Key).
			Exec(ctx)

	case ballast.HashPersist:
		_, err = t.tx.NewUpdate().
			Model((*hashModel)(nil)).
			Set("expire_at = NULL").
			Where("key = ?", c.Key).
			Exec(ctx)

	case ballast.HashDelete:
		_, err = t.tx.NewDelete().
			Model((*hashModel)(nil)).
			Where("key = ?", c.Key).
			Exec(ctx)

	default:
		return fmt.Errorf("ballast/bun: unknown command %T", cmd)
	}

	if err != nil {
		return fmt.Errorf("ballast/bun: %s: %w", cmd.Kind(), err)
	}
	return nil
}

// setJobState inserts the history row, then repoints the job at it. Bun
// fills the model's autoincrement ID from the insert's RETURNING clause.
func (t *bunTx) setJobState(ctx context.Context, c ballast.JobSetState) error {
	m := &jobStateModel{
		JobID:     c.JobID,
		Name:      c.Name,
		Reason:    nullIfEmpty(c.Reason),
		Data:      c.Data,
		CreatedAt: c.CreatedAt,
	}
	if _, err := t.tx.NewInsert().Model(m).Exec(ctx); err != nil {
		return err
	}

	_, err := t.tx.NewUpdate().
		Model((*jobModel)(nil)).
		Set("state_id = ?", m.ID).
		Set("state_name = ?", c.Name).
		Where("id = ?", c.JobID).
		Exec(ctx)
	return err
}

// nullIfEmpty maps an absent reason to SQL NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
