// Package store provides the durable local mirror used by the offline layer.
//
// The store is a partitioned key-value store:
//   - Entity partitions (scans, directory, promos): upsert keyed by entity id
//   - Queue partitions (queue, deadletter): append-only, keyed by a store-assigned seq
//   - Usage partition: one record per calendar day, keyed by "YYYY-MM-DD"
//
// # Backends
//
// Backend is the partition-generic contract. This package implements it on
// SQLite; boltstore implements it on BoltDB and memstore keeps everything in
// process memory. Local layers typed entity, queue and usage access on top of
// any Backend.
//
// # Critical Patterns
//
// Absent is not an error:
//   - Get returns (Record{}, false, nil) for a missing key
//   - GetAll returns an empty, non-nil slice for an empty partition
//   - Remove of a missing key succeeds
//
// FIFO queues:
//   - Append assigns a strictly increasing seq that is never reused
//   - GetAll on a queue partition iterates ORDER BY seq ASC
//
// Degradation:
//   - Every persistence failure is a *StorageError matching ErrStorageUnavailable
//   - Callers log and continue with an in-memory default instead of failing
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
