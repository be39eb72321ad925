package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/mintfactory/internal/hostrt"
	"github.com/roach88/mintfactory/internal/ir"
)

// CallsOptions holds flags for the calls command.
type CallsOptions struct {
	*RootOptions
	RequestID string
	Method    string // optional - filter to one method
	Limit     int
}

// CallEvent is one row of the call log as shown to the user.
type CallEvent struct {
	Seq        int64  `json:"seq"`
	ID         string `json:"id"`
	RequestID  string `json:"request_id"`
	Caller     string `json:"caller"`
	Target     string `json:"target"`
	Method     string `json:"method"`
	ArgBytes   int    `json:"arg_bytes"`
	Outcome    string `json:"outcome"`
	RejectCode string `json:"reject_code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// CallsResult holds the complete calls output.
type CallsResult struct {
	RequestID string      `json:"request_id,omitempty"`
	Timeline  []CallEvent `json:"timeline"`
	Stats     CallStats   `json:"stats"`
}

// CallStats holds summary statistics for the listed calls.
type CallStats struct {
	Total    int            `json:"total"`
	Replies  int            `json:"replies"`
	Rejects  int            `json:"rejects"`
	ByMethod map[string]int `json:"by_method"`
}

// NewCallsCommand creates the calls command.
func NewCallsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "calls",
		Aliases: []string{"trace"},
		Short:   "Show the replica's call log",
		Long: `Show the calls the factory made against the local replica.

With --request, shows every call made on behalf of one request, in
order. Without it, shows the most recent calls across all requests.

Examples:
  mintfactory calls --request 01929c4e-7d7a-7cc1-8f5e-2b7e4c0d9a11
  mintfactory calls --limit 50 --method icrc7_mint
  mintfactory calls --request req-1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalls(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RequestID, "request", "", "request id to show")
	cmd.Flags().StringVar(&opts.Method, "method", "", "filter to one method")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of recent calls when --request is not set")

	return cmd
}

func runCalls(opts *CallsOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	if opts.RequestID == "" && opts.Limit <= 0 {
		return NewExitError(ExitCommandError, "--limit must be positive")
	}

	st, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	var records []ir.CallRecord
	if opts.RequestID != "" {
		records, err = st.ReadCalls(ctx, opts.RequestID)
	} else {
		records, err = st.RecentCalls(ctx, opts.Limit)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read call log", err)
	}

	result := CallsResult{
		RequestID: opts.RequestID,
		Timeline:  buildTimeline(records, opts.Method),
	}
	result.Stats = callStats(result.Timeline)

	out := formatter(cmd, opts.RootOptions)
	if opts.Format == "json" {
		return out.SuccessWithRequest(result, opts.RequestID)
	}
	return outputCallsText(cmd.OutOrStdout(), result, opts.Verbose)
}

// buildTimeline converts call-log rows to display events, keeping only
// calls to method when it is set.
func buildTimeline(records []ir.CallRecord, method string) []CallEvent {
	timeline := []CallEvent{}
	for _, rec := range records {
		if method != "" && rec.Method != method {
			continue
		}
		ev := CallEvent{
			Seq:       rec.Seq,
			ID:        rec.ID,
			RequestID: rec.RequestID,
			Caller:    rec.Caller.String(),
			Target:    rec.Target.String(),
			Method:    rec.Method,
			ArgBytes:  len(rec.Arg),
			Outcome:   rec.Outcome,
			Message:   rec.Message,
		}
		if rec.Outcome == ir.CallRejected {
			ev.RejectCode = hostrt.RejectCode(rec.RejectCode).String()
		}
		timeline = append(timeline, ev)
	}
	return timeline
}

func callStats(timeline []CallEvent) CallStats {
	stats := CallStats{Total: len(timeline), ByMethod: map[string]int{}}
	for _, ev := range timeline {
		if ev.Outcome == ir.CallRejected {
			stats.Rejects++
		} else {
			stats.Replies++
		}
		stats.ByMethod[ev.Method]++
	}
	return stats
}

func outputCallsText(w io.Writer, result CallsResult, verbose bool) error {
	if result.RequestID != "" {
		fmt.Fprintf(w, "Calls for request: %s\n", result.RequestID)
	} else {
		fmt.Fprintln(w, "Recent calls")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no calls)")
	}
	for _, ev := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %s %s -> %s", ev.Seq, ev.Method, ev.Target, ev.Outcome)
		if ev.RejectCode != "" {
			fmt.Fprintf(w, " %s: %s", ev.RejectCode, ev.Message)
		}
		fmt.Fprintln(w)
		if verbose {
			fmt.Fprintf(w, "       Request: %s\n", ev.RequestID)
			fmt.Fprintf(w, "       Caller:  %s\n", ev.Caller)
			fmt.Fprintf(w, "       Arg:     %d bytes\n", ev.ArgBytes)
			fmt.Fprintf(w, "       ID:      %s\n", truncateID(ev.ID))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total:   %d\n", result.Stats.Total)
	fmt.Fprintf(w, "  Replies: %d\n", result.Stats.Replies)
	fmt.Fprintf(w, "  Rejects: %d\n", result.Stats.Rejects)

	methods := make([]string, 0, len(result.Stats.ByMethod))
	for m := range result.Stats.ByMethod {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	for _, m := range methods {
		fmt.Fprintf(w, "    %-18s %d\n", m, result.Stats.ByMethod[m])
	}
	return nil
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
