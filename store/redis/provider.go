package redis

import (
	"context"
	"errors"

	"github.com/ballasthq/ballast/queue"
)

// Ensure QueueProvider implements the provider boundary at compile time.
var _ queue.Provider = QueueProvider{}

// ErrForeignConn is returned when the provider receives a transaction handle
// that did not come from this backend.
var ErrForeignConn = errors.New("ballast/redis: conn is not a redis transaction")

// QueueProvider enqueues through the batch pipeline: RPUSH on the queue list
// plus SADD on the known-queues set, queued alongside the rest of the batch.
// It is what the backend does natively when no resolver is configured; the
// exported type exists so a resolver can route some queue names to Redis and
// others to a table or an external broker.
type QueueProvider struct{}

// Enqueue queues the list push on the active pipeline.
func (QueueProvider) Enqueue(ctx context.Context, conn queue.Conn, queueName, jobID string) error {
	tx, ok := conn.(*redisTx)
	if !ok {
		return ErrForeignConn
	}
	tx.pipe.SAdd(ctx, queuesKey, queueName)
	tx.pipe.RPush(ctx, queueKey(queueName), jobID)
	return nil
}
