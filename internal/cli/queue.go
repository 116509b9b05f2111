package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/leafline/internal/entity"
)

// PendingView is one queued write as shown to operators.
type PendingView struct {
	Seq        int64     `json:"seq"`
	OpID       string    `json:"op_id"`
	Kind       string    `json:"kind"`
	EntityID   string    `json:"entity_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// DeadLetterView is one refused write.
type DeadLetterView struct {
	PendingView
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// QueueResult lists pending writes and dead letters, oldest first.
type QueueResult struct {
	Pending     []PendingView    `json:"pending"`
	DeadLetters []DeadLetterView `json:"dead_letters"`
}

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List writes waiting for sync and dead letters",
		Long: `List the pending write queue in replay order, followed by writes the
remote service refused during replay (dead letters).

Examples:
  leafline queue
  leafline queue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(rootOpts, cmd)
		},
	}
	return cmd
}

func runQueue(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(opts, cmd, requireStore)
	if err != nil {
		return err
	}
	defer a.Close()

	ops, err := a.local.Pending(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read pending queue", err)
	}
	dead, err := a.local.DeadLetters(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read dead letters", err)
	}

	result := QueueResult{
		Pending:     make([]PendingView, 0, len(ops)),
		DeadLetters: make([]DeadLetterView, 0, len(dead)),
	}
	for _, op := range ops {
		result.Pending = append(result.Pending, pendingView(op))
	}
	for _, dl := range dead {
		result.DeadLetters = append(result.DeadLetters, DeadLetterView{
			PendingView: pendingView(dl.Operation),
			Reason:      dl.Reason,
			FailedAt:    dl.FailedAt,
		})
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(result, func(w io.Writer) { writeQueueText(w, result) })
}

func pendingView(op entity.PendingOperation) PendingView {
	v := PendingView{
		Seq:        op.Seq,
		OpID:       op.OpID,
		Kind:       string(op.Kind),
		EnqueuedAt: op.EnqueuedAt,
	}
	if e, err := op.Payload.Unwrap(); err == nil {
		v.EntityID = e.EntityID()
	}
	return v
}

func writeQueueText(w io.Writer, r QueueResult) {
	fmt.Fprintf(w, "Pending writes (%d):\n", len(r.Pending))
	if len(r.Pending) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, p := range r.Pending {
		fmt.Fprintf(w, "  #%-4d %-16s %-12s op=%s queued=%s\n",
			p.Seq, p.Kind, p.EntityID, p.OpID, p.EnqueuedAt.UTC().Format(time.RFC3339))
	}

	fmt.Fprintf(w, "Dead letters (%d):\n", len(r.DeadLetters))
	if len(r.DeadLetters) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, d := range r.DeadLetters {
		fmt.Fprintf(w, "  #%-4d %-16s %-12s op=%s failed=%s\n",
			d.Seq, d.Kind, d.EntityID, d.OpID, d.FailedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(w, "        reason: %s\n", d.Reason)
	}
}
