package connectivity

import (
	"context"
	"log/slog"
	"time"
)

// Default probe timing.
const (
	DefaultProbeInterval = 15 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// CheckFunc reports whether the remote service answered.
type CheckFunc func(ctx context.Context) bool

// Prober periodically runs a health check and feeds the result to a Monitor.
type Prober struct {
	monitor  *Monitor
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewProber creates a prober. Non-positive interval or timeout use the defaults.
func NewProber(m *Monitor, check CheckFunc, interval, timeout time.Duration, logger *slog.Logger) *Prober {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		monitor:  m,
		check:    check,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// ProbeOnce runs a single check and records the result.
// A check interrupted by cancellation of ctx is not recorded.
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	online := p.check(probeCtx)
	if ctx.Err() != nil {
		return p.monitor.IsOnline()
	}
	p.logger.Debug("connectivity probe", "online", online)
	p.monitor.Set(online)
	return online
}

// Run probes immediately and then on every interval until ctx is done.
// Returns ctx.Err().
func (p *Prober) Run(ctx context.Context) error {
	p.ProbeOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.ProbeOnce(ctx)
		}
	}
}
