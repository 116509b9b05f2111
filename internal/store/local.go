package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/roach88/leafline/internal/entity"
)

// Local is the typed view of a Backend used by the offline layer.
//
// Entities are keyed by entity.NormalizeID(id). Pending operations and dead
// letters live in queue partitions, usage records in the usage partition keyed
// by date.
type Local struct {
	backend Backend
}

// NewLocal wraps a backend.
func NewLocal(b Backend) *Local {
	return &Local{backend: b}
}

// Backend returns the underlying backend.
func (l *Local) Backend() Backend { return l.backend }

// Close closes the underlying backend.
func (l *Local) Close() error { return l.backend.Close() }

// Entities returns the cached collection for kind, ordered by id.
// Returns an empty slice (not nil) if nothing is cached.
func (l *Local) Entities(ctx context.Context, kind entity.Kind) ([]entity.Entity, error) {
	p := PartitionFor(kind)
	records, err := l.backend.GetAll(ctx, p)
	if err != nil {
		return nil, err
	}

	out := make([]entity.Entity, 0, len(records))
	for _, rec := range records {
		e, err := unmarshalEntity(rec.Value, kind)
		if err != nil {
			return nil, fmt.Errorf("read %s %q: %w", p, rec.Key, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Entity returns one cached entity.
func (l *Local) Entity(ctx context.Context, kind entity.Kind, id string) (entity.Entity, bool, error) {
	p := PartitionFor(kind)
	rec, ok, err := l.backend.Get(ctx, p, entity.NormalizeID(id))
	if err != nil || !ok {
		return nil, false, err
	}
	e, err := unmarshalEntity(rec.Value, kind)
	if err != nil {
		return nil, false, fmt.Errorf("read %s %q: %w", p, id, err)
	}
	return e, true, nil
}

// PutEntity upserts e into its kind's partition.
func (l *Local) PutEntity(ctx context.Context, e entity.Entity) error {
	id := entity.NormalizeID(e.EntityID())
	if id == "" {
		return fmt.Errorf("put %s: entity id is required", e.Kind())
	}
	data, err := marshalEntity(e)
	if err != nil {
		return err
	}
	return l.backend.Put(ctx, PartitionFor(e.Kind()), id, data)
}

// RemoveEntity deletes one cached entity. Absent ids succeed.
func (l *Local) RemoveEntity(ctx context.Context, kind entity.Kind, id string) error {
	return l.backend.Remove(ctx, PartitionFor(kind), entity.NormalizeID(id))
}

// ReplaceEntities overwrites the cached collection for kind with items.
// Items without an id are skipped; they could never be looked up again.
func (l *Local) ReplaceEntities(ctx context.Context, kind entity.Kind, items []entity.Entity) error {
	records := make([]Record, 0, len(items))
	for _, e := range items {
		if e.Kind() != kind {
			return fmt.Errorf("replace %s: got %s entity", kind, e.Kind())
		}
		id := entity.NormalizeID(e.EntityID())
		if id == "" {
			continue
		}
		data, err := marshalEntity(e)
		if err != nil {
			return err
		}
		records = append(records, Record{Key: id, Value: data})
	}
	return l.backend.Replace(ctx, PartitionFor(kind), records)
}

// Enqueue appends op to the pending queue and returns it with Seq assigned.
func (l *Local) Enqueue(ctx context.Context, op entity.PendingOperation) (entity.PendingOperation, error) {
	op.Seq = 0 // assigned by the store
	data, err := marshalJSON(op, "pending operation")
	if err != nil {
		return op, err
	}
	seq, err := l.backend.Append(ctx, PartitionQueue, data)
	if err != nil {
		return op, err
	}
	op.Seq = seq
	return op, nil
}

// Pending returns queued operations in FIFO order.
func (l *Local) Pending(ctx context.Context) ([]entity.PendingOperation, error) {
	records, err := l.backend.GetAll(ctx, PartitionQueue)
	if err != nil {
		return nil, err
	}

	ops := make([]entity.PendingOperation, 0, len(records))
	for _, rec := range records {
		var op entity.PendingOperation
		if err := unmarshalJSON(rec.Value, &op, "pending operation"); err != nil {
			return nil, fmt.Errorf("read queue seq %d: %w", rec.Seq, err)
		}
		op.Seq = rec.Seq
		ops = append(ops, op)
	}
	return ops, nil
}

// RemovePending deletes one operation by seq, never by position.
func (l *Local) RemovePending(ctx context.Context, seq int64) error {
	return l.backend.Remove(ctx, PartitionQueue, strconv.FormatInt(seq, 10))
}

// PendingCount returns the queue length.
func (l *Local) PendingCount(ctx context.Context) (int, error) {
	records, err := l.backend.GetAll(ctx, PartitionQueue)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// MoveToDeadLetter records dl and then removes its operation from the queue.
// If the removal fails the operation stays queued and may be dead-lettered again.
func (l *Local) MoveToDeadLetter(ctx context.Context, dl entity.DeadLetter) error {
	data, err := marshalJSON(dl, "dead letter")
	if err != nil {
		return err
	}
	if _, err := l.backend.Append(ctx, PartitionDeadLetter, data); err != nil {
		return err
	}
	return l.RemovePending(ctx, dl.Operation.Seq)
}

// DeadLetters returns refused operations in the order they were dead-lettered.
func (l *Local) DeadLetters(ctx context.Context) ([]entity.DeadLetter, error) {
	records, err := l.backend.GetAll(ctx, PartitionDeadLetter)
	if err != nil {
		return nil, err
	}

	out := make([]entity.DeadLetter, 0, len(records))
	for _, rec := range records {
		var dl entity.DeadLetter
		if err := unmarshalJSON(rec.Value, &dl, "dead letter"); err != nil {
			return nil, fmt.Errorf("read dead letter seq %d: %w", rec.Seq, err)
		}
		out = append(out, dl)
	}
	return out, nil
}

// Usage returns the usage record for date.
func (l *Local) Usage(ctx context.Context, date string) (entity.DailyUsageRecord, bool, error) {
	rec, ok, err := l.backend.Get(ctx, PartitionUsage, date)
	if err != nil || !ok {
		return entity.DailyUsageRecord{}, false, err
	}
	var usage entity.DailyUsageRecord
	if err := unmarshalJSON(rec.Value, &usage, "usage record"); err != nil {
		return entity.DailyUsageRecord{}, false, err
	}
	return usage, true, nil
}

// PutUsage upserts the record for usage.Date.
func (l *Local) PutUsage(ctx context.Context, usage entity.DailyUsageRecord) error {
	if usage.Date == "" {
		return fmt.Errorf("put usage: date is required")
	}
	data, err := marshalJSON(usage, "usage record")
	if err != nil {
		return err
	}
	return l.backend.Put(ctx, PartitionUsage, usage.Date, data)
}

// UsageHistory returns every retained usage record, oldest day first.
func (l *Local) UsageHistory(ctx context.Context) ([]entity.DailyUsageRecord, error) {
	records, err := l.backend.GetAll(ctx, PartitionUsage)
	if err != nil {
		return nil, err
	}

	out := make([]entity.DailyUsageRecord, 0, len(records))
	for _, rec := range records {
		var usage entity.DailyUsageRecord
		if err := unmarshalJSON(rec.Value, &usage, "usage record"); err != nil {
			return nil, err
		}
		out = append(out, usage)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Reset clears one partition.
func (l *Local) Reset(ctx context.Context, p Partition) error {
	return l.backend.Clear(ctx, p)
}
