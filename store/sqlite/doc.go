// Package sqlite implements ballast.Driver on SQLite using the pure-Go
// modernc.org/sqlite driver. It is suitable for single-process deployments
// and tests. The store serializes writers through a single connection and
// enables WAL mode for concurrent readers. Timestamps are stored in UTC.
package sqlite
