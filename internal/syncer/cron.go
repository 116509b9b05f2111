package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule re-attempts leftover pending operations every 30 seconds.
const DefaultSchedule = "@every 30s"

// CronScheduler triggers drains on a cron schedule. It covers items left
// queued by a failed pass while the connectivity state never changes.
type CronScheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewCronScheduler registers d.Trigger under spec. An empty spec means
// DefaultSchedule.
func NewCronScheduler(d *Driver, spec string, logger *slog.Logger) (*CronScheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, d.Trigger); err != nil {
		return nil, fmt.Errorf("drain schedule %q: %w", spec, err)
	}
	logger.Debug("drain schedule registered", "schedule", spec)
	return &CronScheduler{cron: c, logger: logger}, nil
}

// Start runs the scheduler in its own goroutine.
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once any running
// trigger call has returned.
func (s *CronScheduler) Stop() context.Context {
	s.logger.Debug("drain schedule stopping")
	return s.cron.Stop()
}
