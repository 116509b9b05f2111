package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/leafline/internal/connectivity"
	"github.com/roach88/leafline/internal/entity"
	"github.com/roach88/leafline/internal/offline"
	"github.com/roach88/leafline/internal/remote"
)

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	Offline bool
}

// FetchResult is what a read through the offline-first façade returned.
type FetchResult struct {
	Kind   string          `json:"kind"`
	Online bool            `json:"online"`
	Count  int             `json:"count"`
	Items  []entity.Entity `json:"items"`
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch <scan|directory|promo>",
		Short: "Read one entity kind through the offline-first cache",
		Long: `Read one entity kind the way the app does: from the remote service when
it is reachable (refreshing the local cache), otherwise from the cache.
Reachability is decided by one health check unless --offline is given.

Examples:
  leafline fetch scan
  leafline fetch promo --offline
  leafline fetch directory --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "skip the health check and read from the cache")

	return cmd
}

func runFetch(opts *FetchOptions, kindArg string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	kind, err := entity.ParseKind(kindArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}

	a, err := openApp(opts.RootOptions, cmd, fallbackToMemory)
	if err != nil {
		return err
	}
	defer a.Close()

	var svc remote.Service = unconfigured{}
	online := false
	if !opts.Offline {
		client, err := a.remoteClient()
		if err != nil {
			return err
		}
		svc = client
		online = client.HealthCheck(ctx)
	}

	monitor := connectivity.NewMonitor(online,
		connectivity.WithLogger(a.logger),
		connectivity.WithMetrics(a.metrics),
	)
	facade, err := offline.New(offline.Deps{
		Local:    a.local,
		Remote:   svc,
		Governor: a.gov,
		Monitor:  monitor,
		Clock:    a.now,
		Logger:   a.logger,
		Metrics:  a.metrics,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build data service", err)
	}

	items, err := fetchKind(ctx, facade, kind)
	if err != nil {
		return WrapExitError(ExitFailure, "read cancelled", err)
	}

	result := FetchResult{Kind: string(kind), Online: online, Count: len(items), Items: items}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(result, func(w io.Writer) { writeFetchText(w, result) })
}

func fetchKind(ctx context.Context, s *offline.Service, kind entity.Kind) ([]entity.Entity, error) {
	switch kind {
	case entity.KindScan:
		return widen(s.GetScans(ctx))
	case entity.KindDirectory:
		return widen(s.GetDirectory(ctx))
	case entity.KindPromo:
		return widen(s.GetPromos(ctx))
	}
	return nil, fmt.Errorf("unknown kind %q", string(kind))
}

func widen[T entity.Entity](items []T, err error) ([]entity.Entity, error) {
	if err != nil {
		return nil, err
	}
	out := make([]entity.Entity, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	return out, nil
}

func writeFetchText(w io.Writer, r FetchResult) {
	mode := "offline"
	if r.Online {
		mode = "online"
	}
	fmt.Fprintf(w, "%d %s record(s) (%s)\n", r.Count, r.Kind, mode)
	for _, e := range r.Items {
		fmt.Fprintf(w, "  %-24s %s\n", e.EntityID(), label(e))
	}
}

func label(e entity.Entity) string {
	switch v := e.(type) {
	case entity.ScanRecord:
		return v.PlantName
	case entity.DirectoryRecord:
		return v.Name
	case entity.PromoMedia:
		return v.Title
	}
	return ""
}

// unconfigured stands in for the remote service when none is configured.
type unconfigured struct{}

func (unconfigured) FetchAll(context.Context, entity.Kind) ([]entity.Entity, error) {
	return nil, &remote.UnreachableError{Op: "fetch", Err: remote.ErrUnreachable}
}

func (unconfigured) Save(context.Context, entity.Entity) (entity.Entity, error) {
	return nil, &remote.UnreachableError{Op: "save", Err: remote.ErrUnreachable}
}
