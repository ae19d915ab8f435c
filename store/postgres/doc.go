// Package postgres implements ballast.Driver on PostgreSQL using pgx/v5.
// It uses pgxpool for connection pooling, native ON CONFLICT upserts for
// the set and hash collections, a writable CTE for the indivisible
// set-job-state statement, and session advisory locks for the Locker.
package postgres
