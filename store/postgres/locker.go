package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ballasthq/ballast/lock"
)

// Ensure Locker implements the lock boundary at compile time.
var _ lock.Locker = (*Locker)(nil)

// Locker implements lock.Locker with PostgreSQL session advisory locks.
// Acquire pins one pool connection and takes pg_advisory_lock on a key
// hashed from the resource name; Release unlocks and returns the
// connection. The lock dies with the session, so a crashed holder cannot
// wedge a resource past its connection lifetime.
type Locker struct {
	pool      *pgxpool.Pool
	namespace string
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithNamespace sets the advisory key namespace. Lockers with different
// namespaces never contend. Default "ballast".
func WithNamespace(ns string) LockerOption {
	return func(l *Locker) { l.namespace = ns }
}

// NewLocker creates an advisory-lock Locker over the given pool.
func NewLocker(pool *pgxpool.Pool, opts ...LockerOption) *Locker {
	l := &Locker{pool: pool, namespace: "ballast"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until the advisory lock for the resource is held.
func (l *Locker) Acquire(ctx context.Context, res lock.Resource) (lock.Guard, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("ballast/postgres: acquire lock conn: %w", err)
	}

	key := l.namespace + ":" + string(res)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1)::bigint)`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("ballast/postgres: advisory lock %q: %w", res, err)
	}

	return &advisoryGuard{conn: conn, key: key}, nil
}

type advisoryGuard struct {
	conn *pgxpool.Conn
	key  string
}

func (g *advisoryGuard) Release(ctx context.Context) error {
	defer g.conn.Release()
	if _, err := g.conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1)::bigint)`, g.key); err != nil {
		return fmt.Errorf("ballast/postgres: advisory unlock %q: %w", g.key, err)
	}
	return nil
}
