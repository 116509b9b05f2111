// Package syncer replays queued writes against the remote service.
//
// A Driver drains the pending queue in FIFO order. Each operation is removed
// by its sequence number only after the remote service confirms it, and the
// confirmed entity is mirrored into the cache. Failed operations stay queued
// and the drain continues with the next one; operations the remote service
// refuses outright are moved to the dead-letter partition.
//
// Drains never overlap. Concurrent Drain calls share one in-flight pass, so a
// queued write is sent at most once per pass.
package syncer
