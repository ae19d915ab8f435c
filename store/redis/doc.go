// Package redis implements ballast.Driver on Redis for high-throughput
// ephemeral workloads. A batch maps to a MULTI/EXEC transaction through
// go-redis TxPipeline, so the whole command queue lands atomically.
//
// Collections map onto native structures: sets are Sorted Sets, hashes
// are Hashes, lists and queues are Lists, counters are Strings mutated
// with INCRBY. Expiry uses per-key TTLs, so expire and persist act on
// the whole collection key, and there is nothing for a maintenance
// sweep to do. State history is a List of serialized state payloads;
// the latest state's name and reason live on the job header Hash.
package redis
