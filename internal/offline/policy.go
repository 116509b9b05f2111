package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/leafline/internal/entity"
	"github.com/roach88/leafline/internal/remote"
	"github.com/roach88/leafline/internal/store"
)

// SaveStatus tells the caller whether a write reached the remote service.
type SaveStatus string

const (
	// Confirmed: the remote service accepted the write.
	Confirmed SaveStatus = "confirmed"
	// Queued: the write is cached locally and will be replayed on reconnect.
	Queued SaveStatus = "queued"
)

// Saved is the result of a write.
type Saved[T entity.Entity] struct {
	Entity T
	Status SaveStatus
	Seq    int64 // Queue sequence when Status is Queued
}

// Fallback reasons, used as log fields and metric labels.
const (
	reasonOffline     = "offline"
	reasonBudget      = "budget"
	reasonRemoteError = "remote_error"
)

// readOp names the governor operation for reading kind.
func readOp(kind entity.Kind) string {
	switch kind {
	case entity.KindScan:
		return "get_scans"
	case entity.KindDirectory:
		return "get_directory"
	case entity.KindPromo:
		return "get_promos"
	}
	panic(fmt.Sprintf("offline: no read operation for kind %q", string(kind)))
}

// read is the single read algorithm behind every Get method.
// It returns an error only when ctx is already done.
func read[T entity.Entity](ctx context.Context, s *Service, kind entity.Kind) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cached := s.cached(ctx, kind)
	online := s.monitor.IsOnline()

	if !online && len(cached) > 0 {
		return narrow[T](s.serveCache(kind, cached, reasonOffline, nil)), nil
	}
	if online && s.budgetHint && len(cached) > 0 && s.governor.ShouldPreferOffline(ctx) {
		return narrow[T](s.serveCache(kind, cached, reasonBudget, nil)), nil
	}

	op := readOp(kind)
	start := time.Now()
	fresh, err := s.remote.FetchAll(ctx, kind)
	s.metrics.RecordRemote(string(kind), "fetch", time.Since(start), err)
	if err != nil {
		return narrow[T](s.serveCache(kind, cached, reasonRemoteError, err)), nil
	}

	if err := s.local.ReplaceEntities(ctx, kind, fresh); err != nil {
		s.storageFailed("replace cache", kind, err)
	}
	s.governor.RecordOperation(ctx, op, s.governor.Cost(op))

	return narrow[T](fresh), nil
}

// write is the single write algorithm behind every Save method.
func write[T entity.Entity](ctx context.Context, s *Service, e T) (Saved[T], error) {
	kind := e.Kind()
	if entity.NormalizeID(e.EntityID()) == "" {
		provisional, ok := entity.As[T](entity.WithID(e, s.ids.Generate()))
		if !ok {
			return Saved[T]{}, fmt.Errorf("save %s: provisional id changed entity type", kind)
		}
		e = provisional
	}

	opID := s.ids.Generate()
	if s.monitor.IsOnline() {
		saved, deferred, err := confirm(ctx, s, e, opID)
		if !deferred {
			return saved, err
		}
	}
	return enqueue(ctx, s, e, opID)
}

// confirm attempts the remote write. deferred reports that the remote was
// unreachable and the write belongs in the queue.
func confirm[T entity.Entity](ctx context.Context, s *Service, e T, opID string) (saved Saved[T], deferred bool, err error) {
	kind := e.Kind()
	op := string(entity.OpFor(kind))

	start := time.Now()
	result, err := s.remote.Save(remote.WithIdempotencyKey(ctx, opID), e)
	s.metrics.RecordRemote(string(kind), "save", time.Since(start), err)

	switch {
	case err == nil:
	case remote.IsRejected(err):
		s.logger.Info("remote rejected write",
			"kind", kind,
			"id", e.EntityID(),
			"error", err,
			"event", "write_rejected",
		)
		return Saved[T]{}, false, fmt.Errorf("save %s %q: %w", kind, e.EntityID(), err)
	default:
		s.logger.Warn("remote write failed, queueing",
			"kind", kind,
			"id", e.EntityID(),
			"error", err,
			"event", "write_deferred",
		)
		return Saved[T]{}, true, nil
	}

	s.governor.RecordOperation(ctx, op, s.governor.Cost(op))

	confirmed, ok := entity.As[T](result)
	if !ok {
		// The remote returned a different kind; keep the input as the confirmed shape.
		s.logger.Warn("remote returned unexpected entity type", "kind", kind, "id", e.EntityID())
		confirmed = e
	}
	if entity.NormalizeID(confirmed.EntityID()) == "" {
		if withID, ok := entity.As[T](entity.WithID(confirmed, e.EntityID())); ok {
			confirmed = withID
		}
	}
	s.mirror(ctx, e, confirmed)

	return Saved[T]{Entity: confirmed, Status: Confirmed}, false, nil
}

// enqueue caches e as-is and appends a pending operation for it.
func enqueue[T entity.Entity](ctx context.Context, s *Service, e T, opID string) (Saved[T], error) {
	kind := e.Kind()

	if err := s.local.PutEntity(ctx, e); err != nil {
		s.storageFailed("cache queued write", kind, err)
	}

	op, err := entity.NewPendingOperation(opID, e, s.now())
	if err != nil {
		return Saved[T]{}, fmt.Errorf("save %s: %w", kind, err)
	}
	op, err = s.local.Enqueue(ctx, op)
	if err != nil {
		// Nothing will replay this write, so the caller must know.
		s.storageFailed("enqueue", kind, err)
		return Saved[T]{}, fmt.Errorf("save %s %q: %w", kind, e.EntityID(), err)
	}

	s.metrics.RecordQueuedWrite(string(kind))
	if n, err := s.local.PendingCount(ctx); err == nil {
		s.metrics.RecordQueueDepth(n)
	}
	s.logger.Info("write queued for sync",
		"kind", kind,
		"id", e.EntityID(),
		"seq", op.Seq,
		"op_id", opID,
		"event", "write_queued",
	)

	return Saved[T]{Entity: e, Status: Queued, Seq: op.Seq}, nil
}

// mirror stores the confirmed entity and drops a cached copy stored under
// a different (provisional) id.
func (s *Service) mirror(ctx context.Context, sent, confirmed entity.Entity) {
	if err := s.local.PutEntity(ctx, confirmed); err != nil {
		s.storageFailed("mirror confirmed write", confirmed.Kind(), err)
		return
	}
	if entity.NormalizeID(sent.EntityID()) != entity.NormalizeID(confirmed.EntityID()) {
		if err := s.local.RemoveEntity(ctx, sent.Kind(), sent.EntityID()); err != nil {
			s.storageFailed("drop provisional copy", sent.Kind(), err)
		}
	}
}

// cached reads the cache, treating any failure as an empty cache.
func (s *Service) cached(ctx context.Context, kind entity.Kind) []entity.Entity {
	items, err := s.local.Entities(ctx, kind)
	if err != nil {
		s.storageFailed("read cache", kind, err)
		return nil
	}
	return items
}

func (s *Service) serveCache(kind entity.Kind, items []entity.Entity, reason string, cause error) []entity.Entity {
	s.metrics.RecordCacheFallback(string(kind), reason)
	attrs := []any{
		"kind", kind,
		"reason", reason,
		"cached", len(items),
		"event", "cache_fallback",
	}
	if cause != nil {
		attrs = append(attrs, "error", cause)
		s.logger.Warn("serving cached data", attrs...)
	} else {
		s.logger.Debug("serving cached data", attrs...)
	}
	return items
}

func (s *Service) storageFailed(action string, kind entity.Kind, err error) {
	msg := "local store operation failed"
	if store.IsUnavailable(err) {
		msg = "local store unavailable"
	}
	s.logger.Warn(msg,
		"action", action,
		"kind", kind,
		"error", err,
		"event", "storage_degraded",
	)
	s.metrics.RecordStorageFailure("offline")
}

// narrow converts a kind-homogeneous slice to its concrete type.
func narrow[T entity.Entity](items []entity.Entity) []T {
	out := make([]T, 0, len(items))
	for _, e := range items {
		if v, ok := entity.As[T](e); ok {
			out = append(out, v)
		}
	}
	return out
}
