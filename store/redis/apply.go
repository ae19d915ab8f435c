package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ballasthq/ballast"
)

// redisTx adapts a go-redis TxPipeline to ballast.Tx. Commands queue
// client-side; errors surface when Commit runs EXEC.
type redisTx struct {
	pipe redis.Pipeliner
}

// Exec is unsupported: Redis takes no SQL, so custom queue providers
// cannot run statements against this backend.
func (t *redisTx) Exec(ctx context.Context, query string, args ...any) error {
	return ballast.ErrConnUnsupported
}

// Commit runs the queued pipeline as one MULTI/EXEC transaction.
func (t *redisTx) Commit(ctx context.Context) error {
	if _, err := t.pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ballast/redis: exec pipeline: %w", err)
	}
	return nil
}

// Rollback discards the queued pipeline.
func (t *redisTx) Rollback(ctx context.Context) error {
	t.pipe.Discard()
	return nil
}

// Apply queues one command on the pipeline.
func (t *redisTx) Apply(ctx context.Context, cmd ballast.Command) error {
	switch c := cmd.(type) {
	case ballast.JobExpire:
		t.pipe.ExpireAt(ctx, jobKey(c.JobID), c.ExpireAt)
		t.pipe.ExpireAt(ctx, jobHistoryKey(c.JobID), c.ExpireAt)

	case ballast.JobPersist:
		t.pipe.Persist(ctx, jobKey(c.JobID))
		t.pipe.Persist(ctx, jobHistoryKey(c.JobID))

	case ballast.JobSetState:
		t.pipe.HSet(ctx, jobKey(c.JobID), map[string]any{
			"state":            c.Name,
			"state_reason":     c.Reason,
			"state_created_at": c.CreatedAt.UTC().Format(timeLayout),
		})
		t.pipe.RPush(ctx, jobHistoryKey(c.JobID), c.Data)

	case ballast.StateAdd:
		t.pipe.RPush(ctx, jobHistoryKey(c.JobID), c.Data)

	case ballast.QueueAdd:
		t.pipe.SAdd(ctx, queuesKey, c.Queue)
		t.pipe.RPush(ctx, queueKey(c.Queue), c.JobID)

	case ballast.CounterAdd:
		t.pipe.IncrBy(ctx, counterKey(c.Key), c.Delta)
		if c.ExpireAt != nil {
			t.pipe.ExpireAt(ctx, counterKey(c.Key), *c.ExpireAt)
		}

	case ballast.SetAdd:
		t.pipe.ZAdd(ctx, setKey(c.Key), redis.Z{Score: c.Score, Member: c.Value})

	case ballast.SetAddRange:
		if len(c.Values) == 0 {
			return nil
		}
		members := make([]redis.Z, 0, len(c.Values))
		for _, v := range c.Values {
			members = append(members, redis.Z{Member: v})
		}
		t.pipe.ZAdd(ctx, setKey(c.Key), members...)

	case ballast.SetRemove:
		t.pipe.ZRem(ctx, setKey(c.Key), c.Value)

	case ballast.SetExpire:
		t.pipe.ExpireAt(ctx, setKey(c.Key), c.ExpireAt)

	case ballast.SetPersist:
		t.pipe.Persist(ctx, setKey(c.Key))

	case ballast.SetDelete:
		t.pipe.Del(ctx, setKey(c.Key))

	case ballast.ListInsert:
		t.pipe.RPush(ctx, listKey(c.Key), c.Value)

	case ballast.ListRemove:
		t.pipe.LRem(ctx, listKey(c.Key), 0, c.Value)

	case ballast.ListTrim:
		// LTRIM bounds are 0-based inclusive over insertion order, the
		// same convention the command carries.
		t.pipe.LTrim(ctx, listKey(c.Key), int64(c.KeepFrom), int64(c.KeepTo))

	case ballast.ListExpire:
		t.pipe.ExpireAt(ctx, listKey(c.Key), c.ExpireAt)

	case ballast.ListPersist:
		t.pipe.Persist(ctx, listKey(c.Key))

	case ballast.HashSetRange:
		if len(c.Fields) == 0 {
			return nil
		}
		t.pipe.HSet(ctx, hashKey(c.Key), c.Fields)

	case ballast.HashExpire:
		t.pipe.ExpireAt(ctx, hashKey(c.Key), c.ExpireAt)

	case ballast.HashPersist:
		t.pipe.Persist(ctx, hashKey(c.Key))

	case ballast.HashDelete:
		t.pipe.Del(ctx, hashKey(c.Key))

	default:
		return fmt.Errorf("ballast/redis: unknown command %T", cmd)
	}

	return nil
}

// timeLayout formats timestamps stored in job header hashes.
const timeLayout = "2006-01-02T15:04:05.000000Z"
