// Package connectivity tracks whether the remote service is reachable.
//
// Monitor holds the current online/offline state and notifies listeners on
// transitions. Prober is a signal source that feeds Monitor from periodic
// health checks when no platform signal exists (server and CLI processes).
package connectivity

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/leafline/internal/metrics"
)

// Listener receives the new state after a transition.
type Listener func(online bool)

// Monitor exposes the online predicate consulted by every data operation.
//
// IsOnline is a lock-free read. Set serializes transitions: listeners run in
// registration order, exactly once per transition, and never for a repeated
// identical state. Listeners run on the caller's goroutine and must not call
// Set.
type Monitor struct {
	online atomic.Bool

	setMu sync.Mutex // Held for a whole transition, including notification

	mu        sync.Mutex
	listeners []registered
	nextID    int
	trigger   func()

	logger  *slog.Logger
	metrics *metrics.Collector
}

type registered struct {
	id int
	fn Listener
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) MonitorOption {
	return func(m *Monitor) { m.metrics = c }
}

// NewMonitor creates a monitor in the given initial state.
func NewMonitor(initial bool, opts ...MonitorOption) *Monitor {
	m := &Monitor{}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.online.Store(initial)
	m.metrics.RecordOnline(initial)
	return m
}

// IsOnline reports the current state.
func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// Set records a platform connectivity signal. Repeated identical signals are
// ignored. An offline to online transition fires the sync trigger once, after
// the listeners.
func (m *Monitor) Set(online bool) {
	m.setMu.Lock()
	defer m.setMu.Unlock()

	if m.online.Swap(online) == online {
		return
	}

	m.logger.Info("connectivity changed", "online", online, "event", "connectivity")
	m.metrics.RecordOnline(online)

	m.mu.Lock()
	ls := make([]registered, len(m.listeners))
	copy(ls, m.listeners)
	trigger := m.trigger
	m.mu.Unlock()

	for _, l := range ls {
		l.fn(online)
	}
	if online && trigger != nil {
		trigger()
	}
}

// OnChange registers fn for future transitions and returns a func that
// removes it.
func (m *Monitor) OnChange(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, registered{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// SetSyncTrigger registers the drain trigger fired on each offline to online
// transition. It replaces any previous trigger; nil clears it. Unlike
// listeners there is only ever one trigger, so a reconnect starts at most one
// drain however many components subscribe.
func (m *Monitor) SetSyncTrigger(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trigger = fn
}
