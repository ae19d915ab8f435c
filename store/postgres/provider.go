package postgres

import (
	"context"
	"fmt"

	"github.com/ballasthq/ballast/queue"
)

// Ensure QueueProvider implements the provider boundary at compile time.
var _ queue.Provider = QueueProvider{}

// QueueProvider is the default table-backed queue provider: an enqueue is
// one row in ballast_jobqueue, committed with the rest of the batch. It is
// also what the backend does natively when no resolver is configured; the
// exported type exists so a resolver can mix table queues with external
// brokers per queue name.
type QueueProvider struct{}

// Enqueue inserts the (queue, job) row through the batch transaction.
func (QueueProvider) Enqueue(ctx context.Context, conn queue.Conn, queueName, jobID string) error {
	err := conn.Exec(ctx,
		`INSERT INTO ballast_jobqueue (queue, job_id) VALUES ($1, $2)`,
		queueName, jobID)
	if err != nil {
		return fmt.Errorf("ballast/postgres: enqueue on %q: %w", queueName, err)
	}
	return nil
}
