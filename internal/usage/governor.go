package usage

import (
	"context"
	"log/slog"
	"maps"
	"math"
	"sync"
	"time"

	"github.com/roach88/leafline/internal/entity"
	"github.com/roach88/leafline/internal/metrics"
)

// Store persists daily usage records. Implemented by *store.Local.
type Store interface {
	Usage(ctx context.Context, date string) (entity.DailyUsageRecord, bool, error)
	PutUsage(ctx context.Context, rec entity.DailyUsageRecord) error
	UsageHistory(ctx context.Context) ([]entity.DailyUsageRecord, error)
}

// Stats is the polled view of today's budget.
type Stats struct {
	Today               entity.DailyUsageRecord `json:"today"`
	RemainingPercentage float64                 `json:"remaining_percentage"`
	RemainingOperations int64                   `json:"remaining_operations"`
	Status              Status                  `json:"status"`
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock sets the wall clock used to pick the current day.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithLocation sets the time zone that defines a calendar day.
// Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return func(g *Governor) { g.loc = loc }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Governor) { g.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(g *Governor) { g.metrics = m }
}

// Governor tracks per-day usage against the configured budget.
//
// RecordOperation and ResetDaily hold one mutex across read, increment and
// persist, and every RecordOperation re-reads the stored record, so counts
// written by another process sharing the store are never overwritten.
//
// When the store is unavailable the governor keeps counting on its last known
// copy of today's record and logs the failure. Operations that could not be
// persisted are carried as a delta and added to the stored record once it can
// be read again; a record that could not be read is never overwritten.
type Governor struct {
	store   Store
	cfg     Config
	now     func() time.Time
	loc     *time.Location
	logger  *slog.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	current  *entity.DailyUsageRecord // Today's record as last known; nil until first use
	unsaved  delta                    // Operations counted but not yet persisted
	notified map[string]Severity      // Highest severity pushed to listeners, per date

	listenersMu sync.Mutex
	listeners   []listener
	nextID      int
}

// delta is a set of operations recorded for one date that the store has not
// seen yet.
type delta struct {
	date     string
	count    int64
	weighted float64
	ops      map[string]int
}

func (d *delta) add(date, name string, cost float64) {
	if d.date != date {
		*d = delta{date: date}
	}
	if d.ops == nil {
		d.ops = make(map[string]int)
	}
	d.count++
	d.weighted += cost
	d.ops[name]++
}

// applyTo returns rec with the delta added when it belongs to rec's date.
func (d delta) applyTo(rec entity.DailyUsageRecord) entity.DailyUsageRecord {
	if d.date != rec.Date || d.count == 0 {
		return rec
	}
	rec.Operations = maps.Clone(rec.Operations)
	if rec.Operations == nil {
		rec.Operations = make(map[string]int)
	}
	rec.OperationCount += d.count
	rec.WeightedCost += d.weighted
	for name, n := range d.ops {
		rec.Operations[name] += n
	}
	return rec
}

type listener struct {
	id int
	fn func(Alert)
}

// NewGovernor creates a governor backed by s.
func NewGovernor(s Store, cfg Config, opts ...Option) *Governor {
	g := &Governor{
		store:    s,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		loc:      time.Local,
		notified: make(map[string]Severity),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Config returns the effective configuration.
func (g *Governor) Config() Config {
	cfg := g.cfg
	cfg.Costs = maps.Clone(g.cfg.Costs)
	return cfg
}

// Cost returns the configured weight for an operation name.
func (g *Governor) Cost(name string) float64 {
	if c, ok := g.cfg.Costs[name]; ok && c > 0 {
		return c
	}
	return 1
}

// DayKey returns the calendar-day key for t.
func (g *Governor) DayKey(t time.Time) string {
	return t.In(g.loc).Format("2006-01-02")
}

// RecordOperation adds one operation of the given cost to today's record and
// returns an alert when a threshold is reached. Cost <= 0 counts as 1.
func (g *Governor) RecordOperation(ctx context.Context, name string, cost float64) *Alert {
	if cost <= 0 || math.IsNaN(cost) {
		cost = 1
	}

	g.mu.Lock()
	date := g.DayKey(g.now())
	rec, readable := g.load(ctx, date)

	rec.Operations = maps.Clone(rec.Operations)
	if rec.Operations == nil {
		rec.Operations = make(map[string]int)
	}
	rec.OperationCount++
	rec.WeightedCost += cost
	rec.Operations[name]++

	if !readable {
		g.unsaved.add(date, name, cost)
	} else if err := g.store.PutUsage(ctx, rec); err != nil {
		g.logger.Warn("usage record not persisted, counting in memory",
			"date", date,
			"operation", name,
			"error", err,
			"event", "storage_degraded",
		)
		g.metrics.RecordStorageFailure("usage")
		g.unsaved.add(date, name, cost)
	} else {
		g.unsaved = delta{}
	}
	g.current = &rec

	sev := classify(rec)
	alert := newAlert(rec, sev, name, cost)
	push := alert != nil && sev.rank() > g.notified[date].rank()
	if push {
		g.notified[date] = sev
	}
	g.mu.Unlock()

	g.metrics.RecordUsage(rec.UsageRatio(), rec.WeightedCost)
	if alert != nil {
		g.metrics.RecordAlert(string(alert.Severity))
		g.logger.Debug("usage threshold reached",
			"date", date,
			"severity", alert.Severity,
			"usage_ratio", alert.UsageRatio,
			"remaining_operations", alert.RemainingOperations,
		)
	}
	if push {
		g.publish(*alert)
	}
	return alert
}

// Stats returns today's budget state. It never creates or writes a record;
// a day with no record reports fresh zero counters.
func (g *Governor) Stats(ctx context.Context) Stats {
	g.mu.Lock()
	rec := g.peek(ctx, g.DayKey(g.now()))
	g.mu.Unlock()

	ratio := rec.UsageRatio()
	return Stats{
		Today:               rec,
		RemainingPercentage: math.Max(0, (1-ratio)*100),
		RemainingOperations: remainingOperations(rec, 1),
		Status:              statusOf(classify(rec)),
	}
}

// ShouldPreferOffline reports whether today's usage has reached the warning ratio.
func (g *Governor) ShouldPreferOffline(ctx context.Context) bool {
	g.mu.Lock()
	rec := g.peek(ctx, g.DayKey(g.now()))
	g.mu.Unlock()
	return rec.UsageRatio() >= rec.WarningRatio
}

// ResetDaily replaces today's record with zero counters.
func (g *Governor) ResetDaily(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	date := g.DayKey(g.now())
	rec := g.fresh(date)
	g.current = &rec
	g.unsaved = delta{}
	delete(g.notified, date)
	g.metrics.RecordUsage(0, 0)

	if err := g.store.PutUsage(ctx, rec); err != nil {
		g.metrics.RecordStorageFailure("usage")
		return err
	}
	g.logger.Info("daily usage reset", "date", date)
	return nil
}

// History returns every retained daily record, oldest first.
func (g *Governor) History(ctx context.Context) ([]entity.DailyUsageRecord, error) {
	return g.store.UsageHistory(ctx)
}

// OnAlert registers fn to be called when today's severity rises to a new
// level. Each level fires at most once per day. The returned func unsubscribes.
func (g *Governor) OnAlert(fn func(Alert)) (unsubscribe func()) {
	g.listenersMu.Lock()
	defer g.listenersMu.Unlock()

	g.nextID++
	id := g.nextID
	g.listeners = append(g.listeners, listener{id: id, fn: fn})

	return func() {
		g.listenersMu.Lock()
		defer g.listenersMu.Unlock()
		for i, l := range g.listeners {
			if l.id == id {
				g.listeners = append(g.listeners[:i:i], g.listeners[i+1:]...)
				return
			}
		}
	}
}

func (g *Governor) publish(a Alert) {
	g.listenersMu.Lock()
	ls := make([]listener, len(g.listeners))
	copy(ls, g.listeners)
	g.listenersMu.Unlock()

	for _, l := range ls {
		l.fn(a)
	}
}

// load returns the record to increment for date and whether the store could
// be read. Must hold mu.
//
// The stored record is authoritative; operations not yet persisted are added
// on top. When the store cannot be read the last known record for date is used
// and the caller must not persist the result.
func (g *Governor) load(ctx context.Context, date string) (entity.DailyUsageRecord, bool) {
	rec, err := g.read(ctx, date)
	if err != nil {
		g.logger.Warn("usage record unreadable, counting in memory",
			"date", date,
			"error", err,
			"event", "storage_degraded",
		)
		g.metrics.RecordStorageFailure("usage")
		return g.lastKnown(date), false
	}
	return rec, true
}

// peek is load without logging, for pure reads. Must hold mu.
func (g *Governor) peek(ctx context.Context, date string) entity.DailyUsageRecord {
	rec, err := g.read(ctx, date)
	if err != nil {
		rec = g.lastKnown(date)
	}
	rec.Operations = maps.Clone(rec.Operations)
	return rec
}

// read returns the stored record for date plus the unsaved delta.
func (g *Governor) read(ctx context.Context, date string) (entity.DailyUsageRecord, error) {
	rec, ok, err := g.store.Usage(ctx, date)
	if err != nil {
		return entity.DailyUsageRecord{}, err
	}
	if !ok {
		rec = g.fresh(date)
	} else {
		rec = g.normalize(rec)
	}
	return g.unsaved.applyTo(rec), nil
}

// lastKnown returns the in-memory record for date, which already includes
// every unsaved operation, or a fresh one carrying the unsaved delta.
func (g *Governor) lastKnown(date string) entity.DailyUsageRecord {
	if g.current != nil && g.current.Date == date {
		return *g.current
	}
	return g.unsaved.applyTo(g.fresh(date))
}

// fresh returns a zero record for date carrying the configured budget.
func (g *Governor) fresh(date string) entity.DailyUsageRecord {
	return entity.DailyUsageRecord{
		Date:          date,
		DailyLimit:    g.cfg.DailyLimit,
		WarningRatio:  g.cfg.WarningRatio,
		CriticalRatio: g.cfg.CriticalRatio,
		Operations:    map[string]int{},
	}
}

// normalize fills budget fields a stored record lacks.
func (g *Governor) normalize(rec entity.DailyUsageRecord) entity.DailyUsageRecord {
	if rec.DailyLimit <= 0 {
		rec.DailyLimit = g.cfg.DailyLimit
	}
	if rec.WarningRatio <= 0 {
		rec.WarningRatio = g.cfg.WarningRatio
	}
	if rec.CriticalRatio <= 0 {
		rec.CriticalRatio = g.cfg.CriticalRatio
	}
	return rec
}
