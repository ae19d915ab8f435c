package lock

import (
	"context"
	"sync"
)

// Resource names a logical collection guarded by a lock scope. The set of
// resources is fixed; one batch acquires each resource at most once.
type Resource string

const (
	ResourceJob     Resource = "job"
	ResourceState   Resource = "state"
	ResourceCounter Resource = "counter"
	ResourceSet     Resource = "set"
	ResourceList    Resource = "list"
	ResourceHash    Resource = "hash"
)

// Guard is a held lock scope. Release must be called on every exit path of
// the batch that acquired it.
type Guard interface {
	Release(ctx context.Context) error
}

// Locker acquires advisory lock scopes for logical collections. Acquiring
// one resource must never block acquisition of a different resource.
type Locker interface {
	Acquire(ctx context.Context, res Resource) (Guard, error)
}

// GuardFunc adapts a release function to the Guard interface.
type GuardFunc func(ctx context.Context) error

func (f GuardFunc) Release(ctx context.Context) error { return f(ctx) }

// Noop is the default Locker. Its scopes are purely advisory: acquisition
// always succeeds immediately and release does nothing.
type Noop struct{}

func (Noop) Acquire(_ context.Context, _ Resource) (Guard, error) {
	return GuardFunc(func(context.Context) error { return nil }), nil
}

// KeyMutex serializes batches within one process using a binary semaphore
// per resource. Acquisition blocks until the holder releases or ctx ends.
type KeyMutex struct {
	mu    sync.Mutex
	slots map[Resource]chan struct{}
}

// NewKeyMutex returns an empty in-process locker.
func NewKeyMutex() *KeyMutex {
	return &KeyMutex{slots: make(map[Resource]chan struct{})}
}

func (k *KeyMutex) slot(res Resource) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[res]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[res] = ch
	}
	return ch
}

// Acquire blocks until the resource slot is free or ctx is done.
func (k *KeyMutex) Acquire(ctx context.Context, res Resource) (Guard, error) {
	ch := k.slot(res)
	select {
	case ch <- struct{}{}:
		return GuardFunc(func(context.Context) error {
			<-ch
			return nil
		}), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
