package redis

// Redis key naming conventions for ballast data.
// All keys are prefixed with "ballast:" to avoid collisions.

const keyPrefix = "ballast:"

// jobKey returns the Hash key for a job header: ballast:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobHistoryKey returns the List key for a job's state history:
// ballast:job:{id}:history
func jobHistoryKey(id string) string { return keyPrefix + "job:" + id + ":history" }

// queueKey returns the List key for a queue: ballast:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// queuesKey is the Set tracking all queue names for enumeration.
const queuesKey = keyPrefix + "queues"

// counterKey returns the String key for a counter: ballast:counter:{key}
func counterKey(key string) string { return keyPrefix + "counter:" + key }

// setKey returns the Sorted Set key for a scored set: ballast:set:{key}
func setKey(key string) string { return keyPrefix + "set:" + key }

// listKey returns the List key for a list: ballast:list:{key}
func listKey(key string) string { return keyPrefix + "list:" + key }

// hashKey returns the Hash key for a hash: ballast:hash:{key}
func hashKey(key string) string { return keyPrefix + "hash:" + key }
