// Package lock provides the advisory lock scopes that serialize concurrent
// write batches touching the same logical collection. The default Noop
// strategy never blocks; KeyMutex coordinates within one process; Redis
// coordinates across processes. The postgres backend ships its own
// advisory-lock implementation in store/postgres.
package lock
