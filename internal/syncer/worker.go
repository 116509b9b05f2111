package syncer

import (
	"context"
	"errors"
)

// ErrRunning is returned by Run when another Run loop is active.
var ErrRunning = errors.New("syncer: drain loop already running")

// Run is the background drain loop. It drains once at start and then every
// time Trigger is called, until ctx is done. Triggers that arrive while a pass
// is in flight collapse into one follow-up pass.
func (d *Driver) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer d.running.Store(false)

	d.logger.Info("drain loop starting")
	for {
		if _, err := d.Drain(ctx); err != nil && ctx.Err() == nil {
			d.logger.Warn("drain failed", "error", err, "event", "drain_failed")
		}

		select {
		case <-ctx.Done():
			d.logger.Info("drain loop stopping: context cancelled")
			return ctx.Err()
		case <-d.signal:
		}
	}
}

// Trigger requests a drain. It never blocks.
//
// With a Run loop active the request is handed to it. Otherwise a detached
// drain starts on its own goroutine; Wait blocks until those finish.
// Trigger is the hook passed to connectivity.Monitor.SetSyncTrigger.
func (d *Driver) Trigger() {
	if d.running.Load() {
		select {
		case d.signal <- struct{}{}:
		default:
		}
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.Drain(context.Background()); err != nil {
			d.logger.Warn("triggered drain failed", "error", err, "event", "drain_failed")
		}
	}()
}

// Wait blocks until every detached drain started by Trigger has returned.
func (d *Driver) Wait() {
	d.wg.Wait()
}
