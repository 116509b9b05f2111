package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/roach88/leafline/internal/entity"
	"github.com/roach88/leafline/internal/metrics"
	"github.com/roach88/leafline/internal/remote"
	"github.com/roach88/leafline/internal/usage"
)

// Queue is the part of store.Local the driver needs.
type Queue interface {
	Pending(ctx context.Context) ([]entity.PendingOperation, error)
	RemovePending(ctx context.Context, seq int64) error
	PendingCount(ctx context.Context) (int, error)
	MoveToDeadLetter(ctx context.Context, dl entity.DeadLetter) error
	PutEntity(ctx context.Context, e entity.Entity) error
	RemoveEntity(ctx context.Context, kind entity.Kind, id string) error
}

// Report summarizes one drain pass.
type Report struct {
	Attempted    int
	Confirmed    int
	DeadLettered int
	Failed       int
	Remaining    int
	Failures     []*ReplayError // Every attempted operation that was not confirmed
	Duration     time.Duration
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Driver) { d.metrics = c }
}

// WithLimiter paces remote saves during a drain.
func WithLimiter(l *rate.Limiter) Option {
	return func(d *Driver) { d.limiter = l }
}

// WithDeadLetter controls whether rejected replays are moved to the
// dead-letter partition. Enabled by default; when disabled they stay queued.
func WithDeadLetter(enabled bool) Option {
	return func(d *Driver) { d.deadLetter = enabled }
}

// WithClock sets the time source for dead-letter timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithUsage records each confirmed replay with the governor.
func WithUsage(g Governor) Option {
	return func(d *Driver) { d.governor = g }
}

// Governor counts confirmed replays against the daily budget.
// Implemented by *usage.Governor.
type Governor interface {
	RecordOperation(ctx context.Context, name string, cost float64) *usage.Alert
	Cost(name string) float64
}

// Driver replays the pending queue.
type Driver struct {
	queue  Queue
	remote remote.Service

	logger     *slog.Logger
	metrics    *metrics.Collector
	limiter    *rate.Limiter
	governor   Governor
	deadLetter bool
	now        func() time.Time

	group singleflight.Group

	// signal wakes Run. Buffered (size 1) so repeated triggers coalesce.
	signal  chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a Driver.
func New(q Queue, r remote.Service, opts ...Option) *Driver {
	d := &Driver{
		queue:      q,
		remote:     r,
		logger:     slog.Default(),
		deadLetter: true,
		now:        time.Now,
		signal:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Drain replays every pending operation once, oldest first.
//
// A concurrent call joins the pass already in flight and receives its report;
// the pass keeps running under the first caller's ctx. Operations enqueued
// while a pass runs are picked up before it returns, so a joiner's writes are
// replayed too. Operations that failed are not retried within the same pass.
// The returned error is non-nil only when the queue could not be read or ctx
// ended the pass early; per-operation failures are in Report.Failures.
func (d *Driver) Drain(ctx context.Context) (Report, error) {
	v, err, shared := d.group.Do("drain", func() (any, error) {
		return d.drain(ctx)
	})
	if shared {
		d.logger.Debug("joined in-flight drain", "event", "drain_coalesced")
	}
	rep, _ := v.(Report)
	return rep, err
}

func (d *Driver) drain(ctx context.Context) (rep Report, err error) {
	start := time.Now()
	defer func() {
		rep.Duration = time.Since(start)
		d.metrics.RecordDrain(rep.Duration)
	}()

	ops, err := d.queue.Pending(ctx)
	if err != nil {
		return rep, fmt.Errorf("read pending queue: %w", err)
	}
	if len(ops) == 0 {
		return rep, nil
	}
	d.logger.Info("draining pending queue", "pending", len(ops), "event", "drain_started")

	stopErr := d.replayAll(ctx, ops, &rep)

	// Pick up writes queued while the pass ran.
	seen := len(ops)
	lastSeq := ops[len(ops)-1].Seq
	for stopErr == nil {
		more, err := d.queue.Pending(ctx)
		if err != nil {
			d.storageFailed("reread pending queue", err)
			break
		}
		more = newerThan(more, lastSeq)
		if len(more) == 0 {
			break
		}
		d.logger.Debug("replaying operations queued during drain", "pending", len(more))
		seen += len(more)
		lastSeq = more[len(more)-1].Seq
		stopErr = d.replayAll(ctx, more, &rep)
	}

	// Count what is left with a fresh context so a cancelled pass still reports.
	if n, err := d.queue.PendingCount(context.WithoutCancel(ctx)); err == nil {
		rep.Remaining = n
		d.metrics.RecordQueueDepth(n)
	} else {
		rep.Remaining = max(0, seen-rep.Confirmed-rep.DeadLettered)
	}

	d.logger.Info("drain finished",
		"attempted", rep.Attempted,
		"confirmed", rep.Confirmed,
		"dead_lettered", rep.DeadLettered,
		"failed", rep.Failed,
		"remaining", rep.Remaining,
		"event", "drain_finished",
	)
	return rep, stopErr
}

// replayAll replays ops in order until ctx ends or the limiter gives up.
func (d *Driver) replayAll(ctx context.Context, ops []entity.PendingOperation, rep *Report) error {
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("drain paced out: %w", err)
			}
		}
		rep.Attempted++
		d.replay(ctx, op, rep)
	}
	return nil
}

// newerThan returns the operations in ops with a seq above seq. ops is in
// queue order.
func newerThan(ops []entity.PendingOperation, seq int64) []entity.PendingOperation {
	for i, op := range ops {
		if op.Seq > seq {
			return ops[i:]
		}
	}
	return nil
}

// replay sends one operation and applies the outcome to the queue and cache.
func (d *Driver) replay(ctx context.Context, op entity.PendingOperation, rep *Report) {
	kind := string(op.Kind)

	sent, err := op.Payload.Unwrap()
	if err != nil {
		// Nothing can ever send this payload.
		d.reject(ctx, op, fmt.Errorf("decode payload: %w", err), rep)
		return
	}

	start := time.Now()
	confirmed, err := d.remote.Save(remote.WithIdempotencyKey(ctx, op.OpID), sent)
	d.metrics.RecordRemote(string(sent.Kind()), "replay", time.Since(start), err)
	if err != nil {
		if remote.IsRejected(err) {
			d.reject(ctx, op, err, rep)
			return
		}
		d.fail(op, err, rep)
		return
	}

	if err := d.queue.RemovePending(ctx, op.Seq); err != nil {
		// The remote has it; the idempotency key makes the next send harmless.
		d.fail(op, fmt.Errorf("remove confirmed operation: %w", err), rep)
		return
	}
	if entity.NormalizeID(confirmed.EntityID()) == "" {
		confirmed = entity.WithID(confirmed, sent.EntityID())
	}
	d.mirror(ctx, sent, confirmed)
	if d.governor != nil {
		d.governor.RecordOperation(ctx, kind, d.governor.Cost(kind))
	}

	rep.Confirmed++
	d.metrics.RecordReplay(kind, metrics.ReplayConfirmed)
	d.logger.Debug("replayed pending operation",
		"seq", op.Seq,
		"op_id", op.OpID,
		"kind", kind,
		"id", confirmed.EntityID(),
	)
}

// fail keeps op queued and records the failure.
func (d *Driver) fail(op entity.PendingOperation, err error, rep *Report) {
	rerr := &ReplayError{Seq: op.Seq, OpID: op.OpID, Kind: op.Kind, Err: err}
	rep.Failed++
	rep.Failures = append(rep.Failures, rerr)
	d.metrics.RecordReplay(string(op.Kind), metrics.ReplayFailed)
	d.logger.Warn("queue replay failed",
		"seq", op.Seq,
		"op_id", op.OpID,
		"kind", op.Kind,
		"error", err,
		"event", "replay_failed",
	)
}

// reject dead-letters op, or keeps it queued when dead-lettering is off.
func (d *Driver) reject(ctx context.Context, op entity.PendingOperation, cause error, rep *Report) {
	if !d.deadLetter {
		d.fail(op, cause, rep)
		return
	}

	dl := entity.DeadLetter{Operation: op, Reason: cause.Error(), FailedAt: d.now()}
	if err := d.queue.MoveToDeadLetter(ctx, dl); err != nil {
		d.fail(op, errors.Join(cause, fmt.Errorf("dead-letter: %w", err)), rep)
		return
	}

	rep.DeadLettered++
	rep.Failures = append(rep.Failures, &ReplayError{Seq: op.Seq, OpID: op.OpID, Kind: op.Kind, Err: cause})
	d.metrics.RecordReplay(string(op.Kind), metrics.ReplayDeadLetter)
	d.logger.Warn("pending operation dead-lettered",
		"seq", op.Seq,
		"op_id", op.OpID,
		"kind", op.Kind,
		"reason", dl.Reason,
		"event", "replay_dead_lettered",
	)
}

// mirror caches the confirmed entity and drops a copy cached under the
// provisional id.
func (d *Driver) mirror(ctx context.Context, sent, confirmed entity.Entity) {
	if err := d.queue.PutEntity(ctx, confirmed); err != nil {
		d.storageFailed("mirror confirmed replay", err)
		return
	}
	if entity.NormalizeID(sent.EntityID()) != entity.NormalizeID(confirmed.EntityID()) {
		if err := d.queue.RemoveEntity(ctx, sent.Kind(), sent.EntityID()); err != nil {
			d.storageFailed("drop provisional copy", err)
		}
	}
}

func (d *Driver) storageFailed(action string, err error) {
	d.logger.Warn("local store operation failed",
		"action", action,
		"error", err,
		"event", "storage_degraded",
	)
	d.metrics.RecordStorageFailure("syncer")
}
