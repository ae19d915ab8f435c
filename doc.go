// Package ballast implements the durable write path of a background-job
// store. A job-processing engine describes a batch of state mutations
// (jobs, state history, counters, sorted sets, lists, hashes, and queue
// enqueues) against a Transaction, then commits the whole batch as one
// atomic unit against a pluggable storage backend.
//
// Ballast is designed as a library, not a service. Import it, configure a
// backend driver, and build batches:
//
//	store, err := postgres.New(ctx, "postgres://localhost:5432/ballast")
//	tx := ballast.NewTransaction(store)
//	tx.IncrementCounter(ctx, "stats:succeeded")
//	tx.AddToQueue(ctx, "default", jobID)
//	if err := tx.Commit(ctx); err != nil { ... }
//
// # Architecture
//
// Mutations never touch storage when they are recorded. Each call validates
// its arguments, takes an advisory lock scope for the collection it touches,
// and appends one command, a plain data value, to the batch. Commit opens
// a single storage transaction and replays every command in order; the
// first failure halts the replay and the backend transaction unwinds, so a
// batch is observable either in full or not at all.
//
// Backends live under store/ (postgres, bun, sqlite, redis, mongo, memory).
// Lock coordination strategies live under lock/ and queue routing under
// queue/. Background housekeeping for expired rows lives under maintain/.
package ballast
