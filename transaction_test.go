package ballast_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ballasthq/ballast"
	"github.com/ballasthq/ballast/lock"
	"github.com/ballasthq/ballast/queue"
	"github.com/ballasthq/ballast/store/memory"
)

// ──────────────────────────────────────────────────
// Test doubles
// ──────────────────────────────────────────────────

type testState struct {
	name   string
	reason string
	data   map[string]string
}

func (s testState) StateName() string            { return s.name }
func (s testState) StateReason() string          { return s.reason }
func (s testState) StateData() map[string]string { return s.data }

// recordingLocker counts acquisitions per resource and records the order
// of acquire and release events.
type recordingLocker struct {
	acquired []lock.Resource
	released []lock.Resource
	err      error
}

func (l *recordingLocker) Acquire(_ context.Context, res lock.Resource) (lock.Guard, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, res)
	return lock.GuardFunc(func(context.Context) error {
		l.released = append(l.released, res)
		return nil
	}), nil
}

func (l *recordingLocker) count(res lock.Resource) int {
	n := 0
	for _, r := range l.acquired {
		if r == res {
			n++
		}
	}
	return n
}

// failingDriver wraps another driver and fails Apply at a chosen command
// index, for atomicity tests.
type failingDriver struct {
	inner  ballast.Driver
	failAt int
}

func (d *failingDriver) Begin(ctx context.Context) (ballast.Tx, error) {
	tx, err := d.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, failAt: d.failAt}, nil
}

type failingTx struct {
	ballast.Tx
	applied int
	failAt  int
}

func (t *failingTx) Apply(ctx context.Context, cmd ballast.Command) error {
	if t.applied == t.failAt {
		return fmt.Errorf("injected failure")
	}
	t.applied++
	return t.Tx.Apply(ctx, cmd)
}

// recordingProvider captures enqueues routed through the resolver.
type recordingProvider struct {
	enqueued []string
}

func (p *recordingProvider) Enqueue(_ context.Context, _ queue.Conn, queueName, jobID string) error {
	p.enqueued = append(p.enqueued, queueName+"/"+jobID)
	return nil
}

// ──────────────────────────────────────────────────
// Commit semantics
// ──────────────────────────────────────────────────

func TestCommitAppliesInEnqueueOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	s.SeedJob("job-1")

	tx := ballast.NewTransaction(s)
	ops := []func() error{
		func() error { return tx.AddToSetWithScore(ctx, "schedule", "job-1", 3.5) },
		func() error { return tx.IncrementCounter(ctx, "stats:enqueued") },
		func() error { return tx.IncrementCounter(ctx, "stats:enqueued") },
		func() error { return tx.DecrementCounter(ctx, "stats:enqueued") },
		func() error { return tx.InsertToList(ctx, "recent", "job-1") },
		func() error { return tx.SetRangeInHash(ctx, "server:1", map[string]string{"queues": "default"}) },
		func() error { return tx.AddToQueue(ctx, "default", "job-1") },
		func() error { return tx.ExpireJob(ctx, "job-1", time.Hour) },
	}
	for i, op := range ops {
		if err := op(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
	}

	kinds := make([]string, 0, len(tx.Commands()))
	for _, cmd := range tx.Commands() {
		kinds = append(kinds, cmd.Kind())
	}
	wantKinds := []string{
		"set.add", "counter.add", "counter.add", "counter.add",
		"list.insert", "hash.set_range", "queue.add", "job.expire",
	}
	if !reflect.DeepEqual(kinds, wantKinds) {
		t.Fatalf("command order = %v, want %v", kinds, wantKinds)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if got := s.CounterValue("stats:enqueued"); got != 1 {
		t.Fatalf("counter = %d, want 1", got)
	}
	if score, ok := s.SetScore("schedule", "job-1"); !ok || score != 3.5 {
		t.Fatalf("set score = %v (present=%v), want 3.5", score, ok)
	}
	if got := s.List("recent"); len(got) != 1 || got[0] != "job-1" {
		t.Fatalf("list = %v, want [job-1]", got)
	}
	if got := s.Queue("default"); len(got) != 1 || got[0] != "job-1" {
		t.Fatalf("queue = %v, want [job-1]", got)
	}
	j, ok := s.Job("job-1")
	if !ok || j.ExpireAt == nil {
		t.Fatalf("job = %+v (present=%v), want an expiry", j, ok)
	}
}

func TestNothingVisibleBeforeCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()

	tx := ballast.NewTransaction(s)
	if err := tx.IncrementCounter(ctx, "stats"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got := s.CounterValue("stats"); got != 0 {
		t.Fatalf("counter visible before commit: %d", got)
	}
}

func TestFailedApplyLeavesNothingBehind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	s.SeedJob("job-1")

	// Fail on the third command.
	tx := ballast.NewTransaction(&failingDriver{inner: s, failAt: 2})
	if err := tx.IncrementCounter(ctx, "stats"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := tx.AddToSet(ctx, "schedule", "job-1"); err != nil {
		t.Fatalf("add to set: %v", err)
	}
	if err := tx.SetJobState(ctx, "job-1", testState{name: "enqueued"}); err != nil {
		t.Fatalf("set job state: %v", err)
	}

	err := tx.Commit(ctx)
	if err == nil {
		t.Fatal("commit succeeded despite injected failure")
	}
	if want := "apply command 2 (job.set_state)"; !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q does not name the failing command, want substring %q", err, want)
	}

	if got := s.CounterValue("stats"); got != 0 {
		t.Fatalf("counter = %d after failed commit, want 0", got)
	}
	if members := s.SetMembers("schedule"); len(members) != 0 {
		t.Fatalf("set members = %v after failed commit, want none", members)
	}
	if states := s.JobStates("job-1"); len(states) != 0 {
		t.Fatalf("state history = %v after failed commit, want none", states)
	}

	// The batch is terminal: further use reports done.
	if err := tx.IncrementCounter(ctx, "stats"); !errors.Is(err, ballast.ErrTransactionDone) {
		t.Fatalf("mutation after failed commit = %v, want ErrTransactionDone", err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, ballast.ErrTransactionDone) {
		t.Fatalf("recommit after failed commit = %v, want ErrTransactionDone", err)
	}
}

func TestTransactionSingleUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()

	tx := ballast.NewTransaction(s)
	if err := tx.IncrementCounter(ctx, "stats"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := tx.Commit(ctx); !errors.Is(err, ballast.ErrTransactionDone) {
		t.Fatalf("second commit = %v, want ErrTransactionDone", err)
	}
	if err := tx.IncrementCounter(ctx, "stats"); !errors.Is(err, ballast.ErrTransactionDone) {
		t.Fatalf("mutation after commit = %v, want ErrTransactionDone", err)
	}
	if err := tx.Abort(ctx); !errors.Is(err, ballast.ErrTransactionDone) {
		t.Fatalf("abort after commit = %v, want ErrTransactionDone", err)
	}

	if got := s.CounterValue("stats"); got != 1 {
		t.Fatalf("counter = %d, want 1", got)
	}
}

func TestAbortDiscardsBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	locker := &recordingLocker{}

	tx := ballast.NewTransaction(s, ballast.WithLocker(locker))
	if err := tx.IncrementCounter(ctx, "stats"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := tx.Abort(ctx); err != nil {
		t.Fatalf("abort: %v", err)
	}

	if got := s.CounterValue("stats"); got != 0 {
		t.Fatalf("counter = %d after abort, want 0", got)
	}
	if len(locker.released) != 1 || locker.released[0] != lock.ResourceCounter {
		t.Fatalf("released = %v, want [counter]", locker.released)
	}
	if err := tx.IncrementCounter(ctx, "stats"); !errors.Is(err, ballast.ErrTransactionDone) {
		t.Fatalf("mutation after abort = %v, want ErrTransactionDone", err)
	}
}

// ──────────────────────────────────────────────────
// Argument validation
// ──────────────────────────────────────────────────

func TestMutationValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	state := testState{name: "enqueued"}

	tests := []struct {
		name    string
		op      func(tx *ballast.Transaction) error
		wantErr error
	}{
		{"expire job empty id", func(tx *ballast.Transaction) error {
			return tx.ExpireJob(ctx, "", time.Hour)
		}, ballast.ErrMissingJobID},
		{"persist job empty id", func(tx *ballast.Transaction) error {
			return tx.PersistJob(ctx, "")
		}, ballast.ErrMissingJobID},
		{"set state empty id", func(tx *ballast.Transaction) error {
			return tx.SetJobState(ctx, "", state)
		}, ballast.ErrMissingJobID},
		{"set state nil state", func(tx *ballast.Transaction) error {
			return tx.SetJobState(ctx, "job-1", nil)
		}, ballast.ErrMissingState},
		{"add state empty id", func(tx *ballast.Transaction) error {
			return tx.AddJobState(ctx, "", state)
		}, ballast.ErrMissingJobID},
		{"add state nil state", func(tx *ballast.Transaction) error {
			return tx.AddJobState(ctx, "job-1", nil)
		}, ballast.ErrMissingState},
		{"enqueue empty queue", func(tx *ballast.Transaction) error {
			return tx.AddToQueue(ctx, "", "job-1")
		}, ballast.ErrMissingQueue},
		{"enqueue empty id", func(tx *ballast.Transaction) error {
			return tx.AddToQueue(ctx, "default", "")
		}, ballast.ErrMissingJobID},
		{"increment empty key", func(tx *ballast.Transaction) error {
			return tx.IncrementCounter(ctx, "")
		}, ballast.ErrMissingKey},
		{"decrement empty key", func(tx *ballast.Transaction) error {
			return tx.DecrementCounter(ctx, "")
		}, ballast.ErrMissingKey},
		{"increment ttl empty key", func(tx *ballast.Transaction) error {
			return tx.IncrementCounterWithTTL(ctx, "", time.Hour)
		}, ballast.ErrMissingKey},
		{"decrement ttl empty key", func(tx *ballast.Transaction) error {
			return tx.DecrementCounterWithTTL(ctx, "", time.Hour)
		}, ballast.ErrMissingKey},
		{"set add empty key", func(tx *ballast.Transaction) error {
			return tx.AddToSet(ctx, "", "v")
		}, ballast.ErrMissingKey},
		{"set add range empty key", func(tx *ballast.Transaction) error {
			return tx.AddRangeToSet(ctx, "", []string{"v"})
		}, ballast.ErrMissingKey},
		{"set add range nil values", func(tx *ballast.Transaction) error {
			return tx.AddRangeToSet(ctx, "schedule", nil)
		}, ballast.ErrMissingValues},
		{"set remove empty key", func(tx *ballast.Transaction) error {
			return tx.RemoveFromSet(ctx, "", "v")
		}, ballast.ErrMissingKey},
		{"set expire empty key", func(tx *ballast.Transaction) error {
			return tx.ExpireSet(ctx, "", time.Hour)
		}, ballast.ErrMissingKey},
		{"set persist empty key", func(tx *ballast.Transaction) error {
			return tx.PersistSet(ctx, "")
		}, ballast.ErrMissingKey},
		{"set delete empty key", func(tx *ballast.Transaction) error {
			return tx.RemoveSet(ctx, "")
		}, ballast.ErrMissingKey},
		{"list insert empty key", func(tx *ballast.Transaction) error {
			return tx.InsertToList(ctx, "", "v")
		}, ballast.ErrMissingKey},
		{"list remove empty key", func(tx *ballast.Transaction) error {
			return tx.RemoveFromList(ctx, "", "v")
		}, ballast.ErrMissingKey},
		{"list trim empty key", func(tx *ballast.Transaction) error {
			return tx.TrimList(ctx, "", 0, 1)
		}, ballast.ErrMissingKey},
		{"list expire empty key", func(tx *ballast.Transaction) error {
			return tx.ExpireList(ctx, "", time.Hour)
		}, ballast.ErrMissingKey},
		{"list persist empty key", func(tx *ballast.Transaction) error {
			return tx.PersistList(ctx, "")
		}, ballast.ErrMissingKey},
		{"hash set empty key", func(tx *ballast.Transaction) error {
			return tx.SetRangeInHash(ctx, "", map[string]string{"f": "v"})
		}, ballast.ErrMissingKey},
		{"hash set nil fields", func(tx *ballast.Transaction) error {
			return tx.SetRangeInHash(ctx, "server:1", nil)
		}, ballast.ErrMissingFields},
		{"hash expire empty key", func(tx *ballast.Transaction) error {
			return tx.ExpireHash(ctx, "", time.Hour)
		}, ballast.ErrMissingKey},
		{"hash persist empty key", func(tx *ballast.Transaction) error {
			return tx.PersistHash(ctx, "")
		}, ballast.ErrMissingKey},
		{"hash delete empty key", func(tx *ballast.Transaction) error {
			return tx.RemoveHash(ctx, "")
		}, ballast.ErrMissingKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			locker := &recordingLocker{}
			tx := ballast.NewTransaction(memory.New(), ballast.WithLocker(locker))

			if err := tt.op(tx); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := len(tx.Commands()); got != 0 {
				t.Fatalf("queued %d commands after rejected call, want 0", got)
			}
			if got := len(locker.acquired); got != 0 {
				t.Fatalf("acquired %d lock scopes after rejected call, want 0", got)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Capture-by-value
// ──────────────────────────────────────────────────

func TestInspectedCommandsAreDetached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	s.SeedJob("job-1")
	tx := ballast.NewTransaction(s)

	if err := tx.AddRangeToSet(ctx, "batch", []string{"a", "b"}); err != nil {
		t.Fatalf("add range: %v", err)
	}
	if err := tx.SetRangeInHash(ctx, "server:1", map[string]string{"queues": "default"}); err != nil {
		t.Fatalf("set range: %v", err)
	}
	if err := tx.SetJobState(ctx, "job-1", testState{name: "enqueued"}); err != nil {
		t.Fatalf("set job state: %v", err)
	}

	// Corrupting inspected commands must not corrupt what Commit replays.
	for _, cmd := range tx.Commands() {
		switch c := cmd.(type) {
		case ballast.SetAddRange:
			c.Values[0] = "mutated"
		case ballast.HashSetRange:
			c.Fields["queues"] = "mutated"
		case ballast.JobSetState:
			for i := range c.Data {
				c.Data[i] = 'x'
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if members := s.SetMembers("batch"); !reflect.DeepEqual(members, []string{"a", "b"}) {
		t.Fatalf("set members = %v, want [a b]", members)
	}
	if got := s.Hash("server:1")["queues"]; got != "default" {
		t.Fatalf("hash field = %q, want default", got)
	}

	states := s.JobStates("job-1")
	if len(states) != 1 {
		t.Fatalf("state history length = %d, want 1", len(states))
	}
	var data map[string]string
	if err := json.Unmarshal(states[0].Data, &data); err != nil {
		t.Fatalf("decode state data after inspection: %v", err)
	}
}

func TestArgumentsCapturedAtCallTime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	s.SeedJob("job-1")
	tx := ballast.NewTransaction(s)

	values := []string{"a", "b"}
	if err := tx.AddRangeToSet(ctx, "batch", values); err != nil {
		t.Fatalf("add range: %v", err)
	}
	values[0] = "mutated"

	fields := map[string]string{"queues": "default"}
	if err := tx.SetRangeInHash(ctx, "server:1", fields); err != nil {
		t.Fatalf("set range: %v", err)
	}
	fields["queues"] = "mutated"

	state := testState{name: "enqueued", data: map[string]string{"at": "now"}}
	if err := tx.SetJobState(ctx, "job-1", state); err != nil {
		t.Fatalf("set job state: %v", err)
	}
	state.data["at"] = "mutated"

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if members := s.SetMembers("batch"); !reflect.DeepEqual(members, []string{"a", "b"}) {
		t.Fatalf("set members = %v, want [a b]", members)
	}
	if got := s.Hash("server:1")["queues"]; got != "default" {
		t.Fatalf("hash field = %q, want default", got)
	}

	states := s.JobStates("job-1")
	if len(states) != 1 {
		t.Fatalf("state history length = %d, want 1", len(states))
	}
	var data map[string]string
	if err := json.Unmarshal(states[0].Data, &data); err != nil {
		t.Fatalf("decode state data: %v", err)
	}
	if data["at"] != "now" {
		t.Fatalf("state data = %v, want captured value", data)
	}
}

// ──────────────────────────────────────────────────
// Lock coordination
// ──────────────────────────────────────────────────

func TestLockScopeAcquiredOncePerResource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	locker := &recordingLocker{}
	tx := ballast.NewTransaction(memory.New(), ballast.WithLocker(locker))

	if err := tx.IncrementCounter(ctx, "a"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := tx.IncrementCounter(ctx, "b"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := tx.AddToSet(ctx, "schedule", "job-1"); err != nil {
		t.Fatalf("add to set: %v", err)
	}
	if err := tx.InsertToList(ctx, "recent", "job-1"); err != nil {
		t.Fatalf("insert to list: %v", err)
	}

	if locker.count(lock.ResourceCounter) != 1 {
		t.Fatalf("counter scope acquired %d times, want 1", locker.count(lock.ResourceCounter))
	}
	want := []lock.Resource{lock.ResourceCounter, lock.ResourceSet, lock.ResourceList}
	if !reflect.DeepEqual(locker.acquired, want) {
		t.Fatalf("acquisition order = %v, want %v", locker.acquired, want)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Released in reverse acquisition order.
	wantRelease := []lock.Resource{lock.ResourceList, lock.ResourceSet, lock.ResourceCounter}
	if !reflect.DeepEqual(locker.released, wantRelease) {
		t.Fatalf("release order = %v, want %v", locker.released, wantRelease)
	}
}

func TestSetJobStateTakesStateThenJobScope(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	locker := &recordingLocker{}
	tx := ballast.NewTransaction(memory.New(), ballast.WithLocker(locker))

	if err := tx.SetJobState(ctx, "job-1", testState{name: "enqueued"}); err != nil {
		t.Fatalf("set job state: %v", err)
	}

	want := []lock.Resource{lock.ResourceState, lock.ResourceJob}
	if !reflect.DeepEqual(locker.acquired, want) {
		t.Fatalf("acquisition order = %v, want %v", locker.acquired, want)
	}
}

func TestLockerFailureRejectsMutation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	lockErr := errors.New("lease lost")
	tx := ballast.NewTransaction(memory.New(), ballast.WithLocker(&recordingLocker{err: lockErr}))

	if err := tx.IncrementCounter(ctx, "stats"); !errors.Is(err, lockErr) {
		t.Fatalf("err = %v, want wrapped %v", err, lockErr)
	}
	if got := len(tx.Commands()); got != 0 {
		t.Fatalf("queued %d commands after lock failure, want 0", got)
	}
}

func TestReleasedLocksFreeForNextBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	km := lock.NewKeyMutex()

	tx := ballast.NewTransaction(s, ballast.WithLocker(km))
	if err := tx.IncrementCounter(ctx, "stats"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// The counter scope must be reacquirable immediately.
	acquireCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	g, err := km.Acquire(acquireCtx, lock.ResourceCounter)
	if err != nil {
		t.Fatalf("reacquire after commit: %v", err)
	}
	if err := g.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Queue routing
// ──────────────────────────────────────────────────

func TestAddToQueueFailsFastWithoutProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	resolver := queue.NewResolver(nil)
	tx := ballast.NewTransaction(memory.New(), ballast.WithQueues(resolver))

	if err := tx.AddToQueue(ctx, "unrouted", "job-1"); !errors.Is(err, queue.ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
	if got := len(tx.Commands()); got != 0 {
		t.Fatalf("queued %d commands after failed resolution, want 0", got)
	}
}

func TestCommitRoutesEnqueuesThroughResolver(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	def := &recordingProvider{}
	critical := &recordingProvider{}
	resolver := queue.NewResolver(def)
	resolver.Register("critical", critical)

	tx := ballast.NewTransaction(s, ballast.WithQueues(resolver))
	if err := tx.AddToQueue(ctx, "default", "job-1"); err != nil {
		t.Fatalf("enqueue default: %v", err)
	}
	if err := tx.AddToQueue(ctx, "critical", "job-2"); err != nil {
		t.Fatalf("enqueue critical: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if !reflect.DeepEqual(def.enqueued, []string{"default/job-1"}) {
		t.Fatalf("default provider saw %v, want [default/job-1]", def.enqueued)
	}
	if !reflect.DeepEqual(critical.enqueued, []string{"critical/job-2"}) {
		t.Fatalf("critical provider saw %v, want [critical/job-2]", critical.enqueued)
	}
	// Routed enqueues bypass the backend's native queue handling.
	if got := s.Queue("default"); len(got) != 0 {
		t.Fatalf("backend queue = %v, want empty", got)
	}
}

// ──────────────────────────────────────────────────
// Ambient-transaction enlistment
// ──────────────────────────────────────────────────

func TestCommitInEnlistsInCallerTransaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()

	outer, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	tx := ballast.NewTransaction(s)
	if err := tx.IncrementCounter(ctx, "stats"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := tx.CommitIn(ctx, outer); err != nil {
		t.Fatalf("commit in: %v", err)
	}

	// The batch is terminal, but the caller's transaction is still open.
	if err := tx.IncrementCounter(ctx, "stats"); !errors.Is(err, ballast.ErrTransactionDone) {
		t.Fatalf("mutation after CommitIn = %v, want ErrTransactionDone", err)
	}
	if got := s.CounterValue("stats"); got != 0 {
		t.Fatalf("counter visible before caller commit: %d", got)
	}

	if err := outer.Commit(ctx); err != nil {
		t.Fatalf("outer commit: %v", err)
	}
	if got := s.CounterValue("stats"); got != 1 {
		t.Fatalf("counter = %d after caller commit, want 1", got)
	}
}

