// Package queue routes logical queue names to enqueue providers. The write
// path only ever hands a provider the queue name, the job id, and the active
// transaction handle; the provider decides the physical enqueue mechanism
// (backend table, Redis list, external broker).
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrNoProvider is returned when a queue name resolves to nothing: no
// registered provider and no default.
var ErrNoProvider = errors.New("ballast: no provider for queue")

// Conn is the statement-execution surface a provider receives. It is
// satisfied by the transaction handles of the SQL backends; non-SQL
// backends hand providers a Conn whose Exec reports unsupported, and
// backend-aware providers type-assert to the native handle instead.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// Provider performs the physical enqueue for one or more logical queues.
type Provider interface {
	Enqueue(ctx context.Context, conn Conn, queueName, jobID string) error
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, conn Conn, queueName, jobID string) error

func (f ProviderFunc) Enqueue(ctx context.Context, conn Conn, queueName, jobID string) error {
	return f(ctx, conn, queueName, jobID)
}

// Resolver maps queue names to providers. Names registered with Register
// win; everything else falls through to the default provider. Safe for
// concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	def       Provider
	providers map[string]Provider
}

// NewResolver creates a Resolver with the given default provider. A nil
// default is allowed; unregistered names then fail to resolve.
func NewResolver(def Provider) *Resolver {
	return &Resolver{
		def:       def,
		providers: make(map[string]Provider),
	}
}

// Register binds a queue name to a provider, replacing any previous binding.
func (r *Resolver) Register(queueName string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[queueName] = p
}

// Resolve returns the provider for a queue name.
func (r *Resolver) Resolve(queueName string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[queueName]; ok {
		return p, nil
	}
	if r.def != nil {
		return r.def, nil
	}
	return nil, ErrNoProvider
}
