package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// DrainResult summarizes one replay pass.
type DrainResult struct {
	Attempted    int      `json:"attempted"`
	Confirmed    int      `json:"confirmed"`
	DeadLettered int      `json:"dead_lettered"`
	Failed       int      `json:"failed"`
	Remaining    int      `json:"remaining"`
	Failures     []string `json:"failures,omitempty"`
}

// NewDrainCommand creates the drain command.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Replay pending writes against the remote service once",
		Long: `Replay every pending write in FIFO order. Confirmed writes leave the
queue and are mirrored into the cache; failed writes stay queued; writes the
remote service refuses are moved to the dead letters (unless sync.dead_letter
is false).

Exit codes:
  0 - Queue drained (dead letters do not count as failures)
  1 - Some writes failed and are still queued
  2 - Command error (config, storage or remote client)

Examples:
  leafline drain
  leafline drain --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(rootOpts, cmd)
		},
	}
	return cmd
}

func runDrain(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(opts, cmd, requireStore)
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.remoteClient()
	if err != nil {
		return err
	}

	rep, err := a.driver(client).Drain(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "drain failed", err)
	}

	result := DrainResult{
		Attempted:    rep.Attempted,
		Confirmed:    rep.Confirmed,
		DeadLettered: rep.DeadLettered,
		Failed:       rep.Failed,
		Remaining:    rep.Remaining,
	}
	for _, f := range rep.Failures {
		result.Failures = append(result.Failures, f.Error())
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := out.Success(result, func(w io.Writer) { writeDrainText(w, result) }); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d write(s) failed to replay", result.Failed))
	}
	return nil
}

func writeDrainText(w io.Writer, r DrainResult) {
	fmt.Fprintf(w, "Replayed %d of %d pending write(s).\n", r.Confirmed, r.Attempted)
	if r.DeadLettered > 0 {
		fmt.Fprintf(w, "Dead-lettered: %d\n", r.DeadLettered)
	}
	if r.Failed > 0 {
		fmt.Fprintf(w, "Failed:        %d\n", r.Failed)
	}
	fmt.Fprintf(w, "Remaining:     %d\n", r.Remaining)
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s\n", f)
	}
}
