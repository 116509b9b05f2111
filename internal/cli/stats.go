package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/leafline/internal/entity"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	History bool
}

// StatsResult is today's budget plus queue counters.
type StatsResult struct {
	Date                string                    `json:"date"`
	Status              string                    `json:"status"`
	OperationCount      int64                     `json:"operation_count"`
	WeightedCost        float64                   `json:"weighted_cost"`
	DailyLimit          float64                   `json:"daily_limit"`
	UsagePercentage     float64                   `json:"usage_percentage"`
	RemainingOperations int64                     `json:"remaining_operations"`
	RemainingPercentage float64                   `json:"remaining_percentage"`
	Operations          map[string]int            `json:"operations,omitempty"`
	PendingWrites       int                       `json:"pending_writes"`
	DeadLetters         int                       `json:"dead_letters"`
	History             []entity.DailyUsageRecord `json:"history,omitempty"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show today's usage budget and queue size",
		Long: `Show the daily usage budget: operations counted today, weighted cost
against the daily limit, remaining operations and alert status, plus the
number of writes waiting for sync.

Examples:
  leafline stats
  leafline stats --history
  leafline stats --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.History, "history", false, "include retained daily records")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(opts.RootOptions, cmd, fallbackToMemory)
	if err != nil {
		return err
	}
	defer a.Close()

	stats := a.gov.Stats(ctx)
	pending, err := a.local.PendingCount(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read pending queue", err)
	}
	dead, err := a.local.DeadLetters(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read dead letters", err)
	}

	result := StatsResult{
		Date:                stats.Today.Date,
		Status:              string(stats.Status),
		OperationCount:      stats.Today.OperationCount,
		WeightedCost:        stats.Today.WeightedCost,
		DailyLimit:          stats.Today.DailyLimit,
		UsagePercentage:     stats.Today.UsageRatio() * 100,
		RemainingOperations: stats.RemainingOperations,
		RemainingPercentage: stats.RemainingPercentage,
		Operations:          stats.Today.Operations,
		PendingWrites:       pending,
		DeadLetters:         len(dead),
	}
	if opts.History {
		result.History, err = a.gov.History(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read usage history", err)
		}
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(result, func(w io.Writer) { writeStatsText(w, result) })
}

func writeStatsText(w io.Writer, r StatsResult) {
	fmt.Fprintf(w, "Date:        %s\n", r.Date)
	fmt.Fprintf(w, "Status:      %s\n", r.Status)
	fmt.Fprintf(w, "Operations:  %d (weighted %.1f)\n", r.OperationCount, r.WeightedCost)
	fmt.Fprintf(w, "Daily limit: %.0f\n", r.DailyLimit)
	fmt.Fprintf(w, "Used:        %.1f%%\n", r.UsagePercentage)
	fmt.Fprintf(w, "Remaining:   %d operations (%.1f%%)\n", r.RemainingOperations, r.RemainingPercentage)
	fmt.Fprintf(w, "Queue:       %d pending, %d dead letters\n", r.PendingWrites, r.DeadLetters)

	if len(r.Operations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "By operation:")
		for _, name := range slices.Sorted(maps.Keys(r.Operations)) {
			fmt.Fprintf(w, "  %-14s %d\n", name, r.Operations[name])
		}
	}

	if len(r.History) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "History:")
		for _, rec := range r.History {
			fmt.Fprintf(w, "  %s  %5d ops  %8.1f / %.0f\n", rec.Date, rec.OperationCount, rec.WeightedCost, rec.DailyLimit)
		}
	}
}
