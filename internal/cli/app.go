package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/roach88/leafline/internal/config"
	"github.com/roach88/leafline/internal/logging"
	"github.com/roach88/leafline/internal/metrics"
	"github.com/roach88/leafline/internal/remote"
	"github.com/roach88/leafline/internal/store"
	"github.com/roach88/leafline/internal/store/boltstore"
	"github.com/roach88/leafline/internal/store/memstore"
	"github.com/roach88/leafline/internal/syncer"
	"github.com/roach88/leafline/internal/usage"
)

// app is the set of components a command works with.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	local   *store.Local
	gov     *usage.Governor
	now     func() time.Time
}

// loadConfig reads config and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	var loadOpts []config.LoadOption
	if opts.Environ != nil {
		loadOpts = append(loadOpts, config.WithEnvironment(opts.Environ))
	}
	cfg, err := config.Load(opts.ConfigPath, loadOpts...)
	if err != nil {
		return config.Config{}, err
	}

	if opts.Database == "" && opts.Backend == "" {
		return cfg, nil
	}
	if opts.Database != "" {
		cfg.DatabasePath = opts.Database
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// storeMode says what openApp does when the configured store cannot be opened.
type storeMode int

const (
	// requireStore fails the command.
	requireStore storeMode = iota
	// fallbackToMemory logs a warning and continues on an empty in-memory
	// store. Used by read-only commands.
	fallbackToMemory
)

// openApp loads config, builds the logger and opens the local store.
func openApp(opts *RootOptions, cmd *cobra.Command, mode storeMode) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}

	m := metrics.NewCollector("")
	backend, err := openBackend(cfg)
	switch {
	case err == nil:
		logger.Debug("local store open", "backend", cfg.Backend, "path", cfg.DatabasePath)
	case mode == fallbackToMemory && store.IsUnavailable(err):
		logger.Warn("local store unavailable, continuing in memory",
			"backend", cfg.Backend,
			"path", cfg.DatabasePath,
			"error", err,
			"event", "storage_degraded",
		)
		m.RecordStorageFailure("open")
		backend = memstore.New()
	default:
		return nil, WrapExitError(ExitCommandError, "failed to open local store", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		_ = backend.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	local := store.NewLocal(backend)
	gov := usage.NewGovernor(local, cfg.UsageConfig(),
		usage.WithClock(now),
		usage.WithLocation(loc),
		usage.WithLogger(logger),
		usage.WithMetrics(m),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		local:   local,
		gov:     gov,
		now:     now,
	}, nil
}

func openBackend(cfg config.Config) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return store.Open(cfg.DatabasePath)
	case config.BackendBolt:
		return boltstore.Open(cfg.DatabasePath)
	case config.BackendMemory:
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func (a *app) Close() {
	if err := a.local.Close(); err != nil {
		a.logger.Error("error closing local store", "error", err)
	}
}

// remoteClient builds the REST client; remote settings are required.
func (a *app) remoteClient() (*remote.Client, error) {
	if a.cfg.Remote.URL == "" {
		return nil, NewExitError(ExitCommandError, "remote.url is not configured (set LEAFLINE_REMOTE_URL)")
	}
	c, err := remote.New(remote.Config{
		ProjectURL:   a.cfg.Remote.URL,
		APIKey:       a.cfg.Remote.APIKey,
		Timeout:      a.cfg.Remote.Timeout,
		AllowedHosts: a.cfg.Remote.AllowedHosts,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create remote client", err)
	}
	return c, nil
}

// driver builds the sync driver from the sync section of the config.
func (a *app) driver(r remote.Service) *syncer.Driver {
	opts := []syncer.Option{
		syncer.WithLogger(a.logger),
		syncer.WithMetrics(a.metrics),
		syncer.WithDeadLetter(a.cfg.Sync.DeadLetter),
		syncer.WithUsage(a.gov),
		syncer.WithClock(a.now),
	}
	if a.cfg.Sync.RateLimit > 0 {
		opts = append(opts, syncer.WithLimiter(rate.NewLimiter(rate.Limit(a.cfg.Sync.RateLimit), a.cfg.Sync.Burst)))
	}
	return syncer.New(a.local, r, opts...)
}
