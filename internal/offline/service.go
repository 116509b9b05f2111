package offline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/leafline/internal/entity"
	"github.com/roach88/leafline/internal/metrics"
	"github.com/roach88/leafline/internal/remote"
	"github.com/roach88/leafline/internal/store"
	"github.com/roach88/leafline/internal/usage"
)

// Governor is the part of usage.Governor the façade consults.
type Governor interface {
	RecordOperation(ctx context.Context, name string, cost float64) *usage.Alert
	Cost(name string) float64
	ShouldPreferOffline(ctx context.Context) bool
}

// Connectivity reports the current online state. Implemented by *connectivity.Monitor.
type Connectivity interface {
	IsOnline() bool
}

// Deps are the collaborators of a Service. Local, Remote, Governor and
// Monitor are required.
type Deps struct {
	Local    *store.Local
	Remote   remote.Service
	Governor Governor
	Monitor  Connectivity

	IDs     entity.IDGenerator // Default: entity.UUIDv7Generator
	Clock   func() time.Time   // Default: time.Now
	Logger  *slog.Logger       // Default: slog.Default()
	Metrics *metrics.Collector
}

// Option configures a Service.
type Option func(*Service)

// WithBudgetHint enables or disables serving warm caches while online once
// the governor reports the warning threshold. Enabled by default.
func WithBudgetHint(enabled bool) Option {
	return func(s *Service) { s.budgetHint = enabled }
}

// Service orchestrates cache, remote service, usage governor and queue.
type Service struct {
	local    *store.Local
	remote   remote.Service
	governor Governor
	monitor  Connectivity
	ids      entity.IDGenerator
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Collector

	budgetHint bool
}

// New creates a Service.
func New(d Deps, opts ...Option) (*Service, error) {
	switch {
	case d.Local == nil:
		return nil, errors.New("offline: local store is required")
	case d.Remote == nil:
		return nil, errors.New("offline: remote service is required")
	case d.Governor == nil:
		return nil, errors.New("offline: usage governor is required")
	case d.Monitor == nil:
		return nil, errors.New("offline: connectivity monitor is required")
	}

	s := &Service{
		local:      d.Local,
		remote:     d.Remote,
		governor:   d.Governor,
		monitor:    d.Monitor,
		ids:        d.IDs,
		now:        d.Clock,
		logger:     d.Logger,
		metrics:    d.Metrics,
		budgetHint: true,
	}
	if s.ids == nil {
		s.ids = entity.UUIDv7Generator{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PendingCount returns the number of writes waiting for replay.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.local.PendingCount(ctx)
}

// Online reports the connectivity predicate the façade is using.
func (s *Service) Online() bool {
	return s.monitor.IsOnline()
}
