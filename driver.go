package ballast

import "context"

// Conn is the minimal statement-execution surface handed to queue providers
// during commit. SQL backends execute the query with parameterized
// arguments; backends without a statement protocol return
// ErrConnUnsupported and expose their native handle for providers that know
// the backend.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// Tx is one backend transaction. Every command of a batch is applied to a
// single Tx, so the batch commits or unwinds as a unit. A Tx is owned by
// exactly one commit for its whole lifetime.
type Tx interface {
	Conn

	// Apply interprets one command and issues the corresponding mutation.
	Apply(ctx context.Context, cmd Command) error

	// Commit makes every applied command durable.
	Commit(ctx context.Context) error

	// Rollback discards every applied command. Calling Rollback after a
	// failed Commit is safe.
	Rollback(ctx context.Context) error
}

// Driver is a storage backend capable of opening batch transactions.
type Driver interface {
	Begin(ctx context.Context) (Tx, error)
}
