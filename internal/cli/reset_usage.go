package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewResetUsageCommand creates the reset-usage command.
func NewResetUsageCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-usage",
		Short: "Reset today's usage counters",
		Long: `Replace today's usage record with zero counters. Earlier days are kept.

Example:
  leafline reset-usage`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResetUsage(rootOpts, cmd)
		},
	}
	return cmd
}

func runResetUsage(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(opts, cmd, requireStore)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.gov.ResetDaily(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to reset usage", err)
	}

	date := a.gov.DayKey(a.now())
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(map[string]string{"date": date}, func(w io.Writer) {
		fmt.Fprintf(w, "Usage for %s reset.\n", date)
	})
}
