package ballast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ballasthq/ballast/lock"
	"github.com/ballasthq/ballast/queue"
)

// tracerName is the instrumentation scope name for ballast tracing.
const tracerName = "github.com/ballasthq/ballast"

// txState tracks the batch lifecycle: open → committed | failed | aborted.
type txState int

const (
	txOpen txState = iota
	txCommitted
	txFailed
	txAborted
)

// Option configures a Transaction.
type Option func(*Transaction)

// WithLocker sets the lock coordinator. Default lock.Noop{}.
func WithLocker(l lock.Locker) Option {
	return func(t *Transaction) { t.locker = l }
}

// WithQueues sets the queue provider resolver. Without one, QueueAdd
// commands are interpreted by the backend's native queue handling.
func WithQueues(r *queue.Resolver) Option {
	return func(t *Transaction) { t.resolver = r }
}

// WithCodec sets the state payload codec. Default JSONCodec.
func WithCodec(c Codec) Option {
	return func(t *Transaction) { t.codec = c }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Transaction) { t.logger = l }
}

// WithTracer sets the tracer used for the commit span. Default is the
// global provider's tracer, which is a no-op unless one is configured.
func WithTracer(tr trace.Tracer) Option {
	return func(t *Transaction) { t.tracer = tr }
}

// Transaction accumulates an ordered batch of write commands and commits
// them atomically against a backend Driver. Mutation calls perform no
// storage I/O; they validate, take the lock scope for the collection they
// touch, and append a command. Commit replays the whole batch inside one
// backend transaction.
//
// A Transaction is single-use and not safe for concurrent use: the caller
// records mutations and commits on one goroutine, exactly once. After
// Commit, CommitIn, or Abort every method returns ErrTransactionDone.
type Transaction struct {
	driver   Driver
	locker   lock.Locker
	resolver *queue.Resolver
	codec    Codec
	logger   *slog.Logger
	tracer   trace.Tracer

	state  txState
	cmds   []Command
	guards map[lock.Resource]lock.Guard
	order  []lock.Resource
}

// NewTransaction creates an open write batch against the given driver.
func NewTransaction(driver Driver, opts ...Option) *Transaction {
	t := &Transaction{
		driver: driver,
		locker: lock.Noop{},
		codec:  JSONCodec{},
		logger: slog.Default(),
		guards: make(map[lock.Resource]lock.Guard),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(tracerName)
	}
	return t
}

// Commands returns the commands recorded so far, in enqueue order. The
// returned slice and each command's interior data are copies; mutating them
// does not affect what Commit replays.
func (t *Transaction) Commands() []Command {
	out := make([]Command, len(t.cmds))
	for i, cmd := range t.cmds {
		out[i] = cloneCommand(cmd)
	}
	return out
}

// ready rejects mutations and commits on a batch in a terminal state.
func (t *Transaction) ready() error {
	if t.state != txOpen {
		return ErrTransactionDone
	}
	return nil
}

// acquire takes the lock scope for a resource the first time the batch
// touches it. Re-acquisition within the batch is a no-op.
func (t *Transaction) acquire(ctx context.Context, res lock.Resource) error {
	if _, held := t.guards[res]; held {
		return nil
	}
	g, err := t.locker.Acquire(ctx, res)
	if err != nil {
		return fmt.Errorf("ballast: acquire %s lock: %w", res, err)
	}
	t.guards[res] = g
	t.order = append(t.order, res)
	return nil
}

// releaseLocks frees every held guard in reverse acquisition order. Called
// on every path out of the batch.
func (t *Transaction) releaseLocks(ctx context.Context) {
	for i := len(t.order) - 1; i >= 0; i-- {
		res := t.order[i]
		if err := t.guards[res].Release(ctx); err != nil {
			t.logger.Warn("ballast: release lock failed", "resource", string(res), "error", err)
		}
		delete(t.guards, res)
	}
	t.order = t.order[:0]
}

// captureState serializes a state payload at call time so later mutation of
// the caller's objects cannot affect the queued command.
func (t *Transaction) captureState(s State) (name, reason string, data []byte, err error) {
	data, err = t.codec.Marshal(s.StateData())
	if err != nil {
		return "", "", nil, fmt.Errorf("ballast: encode state data: %w", err)
	}
	return s.StateName(), s.StateReason(), data, nil
}

// ── Job operations ──

// ExpireJob schedules the job row for expiry ttl from now.
func (t *Transaction) ExpireJob(ctx context.Context, jobID string, ttl time.Duration) error {
	if err := t.ready(); err != nil {
		return err
	}
	if jobID == "" {
		return ErrMissingJobID
	}
	if err := t.acquire(ctx, lock.ResourceJob); err != nil {
		return err
	}
	t.cmds = append(t.cmds, JobExpire{JobID: jobID, ExpireAt: time.Now().UTC().Add(ttl)})
	return nil
}

// PersistJob clears the job row's expiry.
func (t *Transaction) PersistJob(ctx context.Context, jobID string) error {
	if err := t.ready(); err != nil {
		return err
	}
	if jobID == "" {
		return ErrMissingJobID
	}
	if err := t.acquire(ctx, lock.ResourceJob); err != nil {
		return err
	}
	t.cmds = append(t.cmds, JobPersist{JobID: jobID})
	return nil
}

// SetJobState appends a state-history row and repoints the job's current
// state to it, indivisibly. This is the one operation that touches two
// collections, so it takes the state scope and then the job scope.
func (t *Transaction) SetJobState(ctx context.Context, jobID string, state State) error {
	if err := t.ready(); err != nil {
		return err
	}
	if jobID == "" {
		return ErrMissingJobID
	}
	if state == nil {
		return ErrMissingState
	}
	name, reason, data, err := t.captureState(state)
	if err != nil {
		return err
	}
	if err := t.acquire(ctx, lock.ResourceState); err != nil {
		return err
	}
	if err := t.acquire(ctx, lock.ResourceJob); err != nil {
		return err
	}
	t.cmds = append(t.cmds, JobSetState{
		JobID:     jobID,
		Name:      name,
		Reason:    reason,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// AddJobState appends a state-history row without making it the job's
// current state. Used for informational transitions.
func (t *Transaction) AddJobState(ctx context.Context, jobID string, state State) error {
	if err := t.ready(); err != nil {
		return err
	}
	if jobID == "" {
		return ErrMissingJobID
	}
	if state == nil {
		return ErrMissingState
	}
	name, reason, data, err := t.captureState(state)
	if err != nil {
		return err
	}
	if err := t.acquire(ctx, lock.ResourceState); err != nil {
		return err
	}
	t.cmds = append(t.cmds, StateAdd{
		JobID:     jobID,
		Name:      name,
		Reason:    reason,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// ── Queue operations ──

// AddToQueue records an enqueue of jobID on the named logical queue. If a
// resolver is configured the queue name must resolve now, so a misrouted
// enqueue fails at call time rather than at commit.
func (t *Transaction) AddToQueue(ctx context.Context, queueName, jobID string) error {
	if err := t.ready(); err != nil {
		return err
	}
	if queueName == "" {
		return ErrMissingQueue
	}
	if jobID == "" {
		return ErrMissingJobID
	}
	if t.resolver != nil {
		if _, err := t.resolver.Resolve(queueName); err != nil {
			return err
		}
	}
	t.cmds = append(t.cmds, QueueAdd{Queue: queueName, JobID: jobID})
	return nil
}

// ── Counter operations ──

// IncrementCounter records a +1 delta row for the counter key.
func (t *Transaction) IncrementCounter(ctx context.Context, key string) error {
	return t.addCounter(ctx, key, +1, nil)
}

// IncrementCounterWithTTL records a +1 delta row that expires ttl from now.
func (t *Transaction) IncrementCounterWithTTL(ctx context.Context, key string, ttl time.Duration) error {
	expireAt := time.Now().UTC().Add(ttl)
	return t.addCounter(ctx, key, +1, &expireAt)
}

// DecrementCounter records a -1 delta row for the counter key.
func (t *Transaction) DecrementCounter(ctx context.Context, key string) error {
	return t.addCounter(ctx, key, -1, nil)
}

// DecrementCounterWithTTL records a -1 delta row that expires ttl from now.
func (t *Transaction) DecrementCounterWithTTL(ctx context.Context, key string, ttl time.Duration) error {
	expireAt := time.Now().UTC().Add(ttl)
	return t.addCounter(ctx, key, -1, &expireAt)
}

func (t *Transaction) addCounter(ctx context.Context, key string, delta int64, expireAt *time.Time) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceCounter); err != nil {
		return err
	}
	t.cmds = append(t.cmds, CounterAdd{Key: key, Delta: delta, ExpireAt: expireAt})
	return nil
}

// ── Set operations ──

// AddToSet upserts value into the sorted set with score zero.
func (t *Transaction) AddToSet(ctx context.Context, key, value string) error {
	return t.AddToSetWithScore(ctx, key, value, 0)
}

// AddToSetWithScore upserts value into the sorted set. Re-adding an existing
// value updates its score.
func (t *Transaction) AddToSetWithScore(ctx context.Context, key, value string, score float64) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceSet); err != nil {
		return err
	}
	t.cmds = append(t.cmds, SetAdd{Key: key, Value: value, Score: score})
	return nil
}

// AddRangeToSet upserts every value with score zero as one batched command.
// The slice is copied at call time.
func (t *Transaction) AddRangeToSet(ctx context.Context, key string, values []string) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if values == nil {
		return ErrMissingValues
	}
	if err := t.acquire(ctx, lock.ResourceSet); err != nil {
		return err
	}
	copied := make([]string, len(values))
	copy(copied, values)
	t.cmds = append(t.cmds, SetAddRange{Key: key, Values: copied})
	return nil
}

// RemoveFromSet deletes one value from the sorted set.
func (t *Transaction) RemoveFromSet(ctx context.Context, key, value string) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceSet); err != nil {
		return err
	}
	t.cmds = append(t.cmds, SetRemove{Key: key, Value: value})
	return nil
}

// ExpireSet schedules every member of the set for expiry ttl from now.
func (t *Transaction) ExpireSet(ctx context.Context, key string, ttl time.Duration) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceSet); err != nil {
		return err
	}
	t.cmds = append(t.cmds, SetExpire{Key: key, ExpireAt: time.Now().UTC().Add(ttl)})
	return nil
}

// PersistSet clears expiry on every member of the set.
func (t *Transaction) PersistSet(ctx context.Context, key string) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceSet); err != nil {
		return err
	}
	t.cmds = append(t.cmds, SetPersist{Key: key})
	return nil
}

// RemoveSet deletes every member of the set.
func (t *Transaction) RemoveSet(ctx context.Context, key string) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceSet); err != nil {
		return err
	}
	t.cmds = append(t.cmds, SetDelete{Key: key})
	return nil
}

// ── List operations ──

// InsertToList appends value to the list.
func (t *Transaction) InsertToList(ctx context.Context, key, value string) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceList); err != nil {
		return err
	}
	t.cmds = append(t.cmds, ListInsert{Key: key, Value: value})
	return nil
}

// RemoveFromList deletes every occurrence of value from the list.
func (t *Transaction) RemoveFromList(ctx context.Context, key, value string) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceList); err != nil {
		return err
	}
	t.cmds = append(t.cmds, ListRemove{Key: key, Value: value})
	return nil
}

// TrimList deletes list rows outside the window [keepStartingFrom,
// keepEndingAt]. Bounds are 0-based inclusive over insertion order:
// TrimList(ctx, key, 1, 3) on [a b c d e] keeps [b c d].
func (t *Transaction) TrimList(ctx context.Context, key string, keepStartingFrom, keepEndingAt int) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceList); err != nil {
		return err
	}
	t.cmds = append(t.cmds, ListTrim{Key: key, KeepFrom: keepStartingFrom, KeepTo: keepEndingAt})
	return nil
}

// ExpireList schedules every row of the list for expiry ttl from now.
func (t *Transaction) ExpireList(ctx context.Context, key string, ttl time.Duration) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceList); err != nil {
		return err
	}
	t.cmds = append(t.cmds, ListExpire{Key: key, ExpireAt: time.Now().UTC().Add(ttl)})
	return nil
}

// PersistList clears expiry on every row of the list.
func (t *Transaction) PersistList(ctx context.Context, key string) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceList); err != nil {
		return err
	}
	t.cmds = append(t.cmds, ListPersist{Key: key})
	return nil
}

// ── Hash operations ──

// SetRangeInHash upserts every (field, value) pair as one batched command.
// The map is copied at call time.
func (t *Transaction) SetRangeInHash(ctx context.Context, key string, fields map[string]string) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if fields == nil {
		return ErrMissingFields
	}
	if err := t.acquire(ctx, lock.ResourceHash); err != nil {
		return err
	}
	copied := make(map[string]string, len(fields))
	for f, v := range fields {
		copied[f] = v
	}
	t.cmds = append(t.cmds, HashSetRange{Key: key, Fields: copied})
	return nil
}

// ExpireHash schedules every field of the hash for expiry ttl from now.
func (t *Transaction) ExpireHash(ctx context.Context, key string, ttl time.Duration) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceHash); err != nil {
		return err
	}
	t.cmds = append(t.cmds, HashExpire{Key: key, ExpireAt: time.Now().UTC().Add(ttl)})
	return nil
}

// PersistHash clears expiry on every field of the hash.
func (t *Transaction) PersistHash(ctx context.Context, key string) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceHash); err != nil {
		return err
	}
	t.cmds = append(t.cmds, HashPersist{Key: key})
	return nil
}

// RemoveHash deletes every field of the hash.
func (t *Transaction) RemoveHash(ctx context.Context, key string) error {
	if err := t.ready(); err != nil {
		return err
	}
	if key == "" {
		return ErrMissingKey
	}
	if err := t.acquire(ctx, lock.ResourceHash); err != nil {
		return err
	}
	t.cmds = append(t.cmds, HashDelete{Key: key})
	return nil
}

// ── Commit orchestration ──

// Commit opens a backend transaction, replays every recorded command in
// enqueue order, and commits. The first command failure halts the replay,
// rolls the backend transaction back, and leaves the batch in a terminal
// failed state; none of the batch's effects are then observable. Held lock
// scopes are released on every outcome. A committed, failed, or aborted
// batch cannot be committed again.
func (t *Transaction) Commit(ctx context.Context) error {
	if err := t.ready(); err != nil {
		return err
	}
	defer t.releaseLocks(ctx)

	ctx, span := t.startSpan(ctx)
	defer span.End()

	tx, err := t.driver.Begin(ctx)
	if err != nil {
		t.state = txFailed
		err = fmt.Errorf("ballast: begin: %w", err)
		t.finishSpan(span, err)
		return err
	}

	if err := t.replay(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			t.logger.Warn("ballast: rollback failed", "error", rbErr)
		}
		t.state = txFailed
		t.finishSpan(span, err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		t.state = txFailed
		err = fmt.Errorf("ballast: commit: %w", err)
		t.finishSpan(span, err)
		return err
	}

	t.state = txCommitted
	t.finishSpan(span, nil)
	return nil
}

// CommitIn replays the batch into a caller-owned transaction handle and
// leaves committing (or rolling back) that handle to the caller. This is
// how a batch enlists in an ambient transaction so its effects compose with
// other work under one atomic outcome. The batch still transitions to a
// terminal state and releases its lock scopes.
func (t *Transaction) CommitIn(ctx context.Context, tx Tx) error {
	if err := t.ready(); err != nil {
		return err
	}
	defer t.releaseLocks(ctx)

	ctx, span := t.startSpan(ctx)
	defer span.End()

	if err := t.replay(ctx, tx); err != nil {
		t.state = txFailed
		t.finishSpan(span, err)
		return err
	}

	t.state = txCommitted
	t.finishSpan(span, nil)
	return nil
}

// Abort abandons an open batch without executing anything. Held lock scopes
// are released and the batch becomes terminal.
func (t *Transaction) Abort(ctx context.Context) error {
	if err := t.ready(); err != nil {
		return err
	}
	t.state = txAborted
	t.releaseLocks(ctx)
	return nil
}

// replay drains the command queue against tx in enqueue order, fail-fast.
func (t *Transaction) replay(ctx context.Context, tx Tx) error {
	for i, cmd := range t.cmds {
		var err error
		if qa, ok := cmd.(QueueAdd); ok && t.resolver != nil {
			var p queue.Provider
			p, err = t.resolver.Resolve(qa.Queue)
			if err == nil {
				err = p.Enqueue(ctx, tx, qa.Queue, qa.JobID)
			}
		} else {
			err = tx.Apply(ctx, cmd)
		}
		if err != nil {
			return fmt.Errorf("ballast: apply command %d (%s): %w", i, cmd.Kind(), err)
		}
	}
	return nil
}

func (t *Transaction) startSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "ballast.transaction.commit",
		trace.WithAttributes(
			attribute.Int("ballast.commands", len(t.cmds)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *Transaction) finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
