package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/leafline/internal/connectivity"
	"github.com/roach88/leafline/internal/syncer"
	"github.com/roach88/leafline/internal/usage"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsAddr string

	// Ready is called with the metrics listener address once every
	// component has started (for testing).
	Ready func(metricsAddr string)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the background sync agent",
		Long: `Run the sync agent until interrupted:

  - probes the remote service and tracks connectivity,
  - drains the pending queue on every offline-to-online transition,
  - re-attempts leftover writes on the sync schedule,
  - serves Prometheus metrics on /metrics.

Examples:
  leafline run
  leafline run --metrics-addr 127.0.0.1:9464 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "metrics listen address (overrides config; \"off\" disables)")

	return cmd
}

func runAgent(opts *RunOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd, requireStore)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	client, err := a.remoteClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	monitor := connectivity.NewMonitor(false,
		connectivity.WithLogger(logger),
		connectivity.WithMetrics(a.metrics),
	)
	driver := a.driver(client)
	monitor.SetSyncTrigger(driver.Trigger)
	monitor.OnChange(func(online bool) {
		logger.Info("connectivity changed", "online", online, "event", "connectivity_changed")
	})
	a.gov.OnAlert(func(al usage.Alert) {
		logger.Warn("usage alert",
			"severity", al.Severity,
			"usage_ratio", al.UsageRatio,
			"remaining_operations", al.RemainingOperations,
			"action", al.Action,
			"event", "usage_alert",
		)
	})

	sched, err := syncer.NewCronScheduler(driver, a.cfg.Sync.Schedule, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid sync schedule", err)
	}
	prober := connectivity.NewProber(monitor, client.HealthCheck, a.cfg.Probe.Interval, a.cfg.Probe.Timeout, logger)

	addr := a.cfg.MetricsAddr
	if opts.MetricsAddr != "" {
		addr = opts.MetricsAddr
	}
	var (
		ln  net.Listener
		srv *http.Server
	)
	if addr != "off" && addr != "" {
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen for metrics", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry(), promhttp.HandlerOpts{}))
		srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return driver.Run(gctx) })
	g.Go(func() error { return prober.Run(gctx) })
	if srv != nil {
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}
	sched.Start()

	metricsAddr := ""
	if ln != nil {
		metricsAddr = ln.Addr().String()
	}
	logger.Info("sync agent started", "metrics_addr", metricsAddr, "schedule", a.cfg.Sync.Schedule)
	fmt.Fprintln(cmd.OutOrStdout(), "Sync agent started. Press Ctrl-C to stop.")
	if opts.Ready != nil {
		opts.Ready(metricsAddr)
	}

	err = g.Wait()
	<-sched.Stop().Done()
	driver.Wait()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "sync agent error", err)
	}
	logger.Info("sync agent stopped gracefully")
	return nil
}
