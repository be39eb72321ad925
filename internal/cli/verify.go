package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mintfactory/internal/ir"
	"github.com/roach88/mintfactory/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	RequestID string // optional - one request only
}

// VerifyRequestResult holds the verification result for one request.
type VerifyRequestResult struct {
	RequestID string   `json:"request_id"`
	Calls     int      `json:"calls"`
	Rejects   int      `json:"rejects"`
	Intact    bool     `json:"intact"`
	Problems  []string `json:"problems,omitempty"`
}

// VerifyResult holds the overall verification result.
type VerifyResult struct {
	Requests      []VerifyRequestResult `json:"requests"`
	TotalRequests int                   `json:"total_requests"`
	TotalCalls    int                   `json:"total_calls"`
	UnitsChecked  int                   `json:"units_checked"`
	UnitProblems  []string              `json:"unit_problems,omitempty"`
	AllIntact     bool                  `json:"all_intact"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the integrity of the call log",
		Long: `Re-derive the content-addressed id of every call-log row and check
that no two rows share a sequence number.

A row whose stored id no longer matches its request id, sequence number,
target, method and argument was altered after it was written. Without
--request, the code stored for every unit is also re-hashed and compared
with the module hash the replica reports for it.

Exit codes:
  0 - Call log intact
  1 - One or more rows failed verification
  2 - Command error (database not found, etc.)

Examples:
  mintfactory verify --db ./mintfactory.db
  mintfactory verify --request req-1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RequestID, "request", "", "verify one request only")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	st, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	calls, err := readCallLog(ctx, st, opts.RequestID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read call log", err)
	}

	result := verifyCalls(calls)
	if opts.RequestID == "" {
		if err := verifyUnits(ctx, st, &result); err != nil {
			return WrapExitError(ExitCommandError, "failed to read units", err)
		}
	}
	out := formatter(cmd, opts.RootOptions)

	if opts.Format == "json" {
		if result.AllIntact {
			return out.Success(result)
		}
		if err := out.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: CodeTampered, Message: "call log verification failed"},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "call log verification failed")
	}

	return outputVerifyText(cmd.OutOrStdout(), result, opts.Verbose)
}

func readCallLog(ctx context.Context, st *store.Store, requestID string) ([]ir.CallRecord, error) {
	if requestID != "" {
		return st.ReadCalls(ctx, requestID)
	}
	return st.ListCalls(ctx)
}

// verifyCalls groups calls by request, in order of each request's first
// call, and checks every row.
func verifyCalls(calls []ir.CallRecord) VerifyResult {
	result := VerifyResult{
		Requests:   []VerifyRequestResult{},
		TotalCalls: len(calls),
		AllIntact:  true,
	}

	index := make(map[string]int)
	seenSeq := make(map[int64]string)

	for _, c := range calls {
		i, ok := index[c.RequestID]
		if !ok {
			i = len(result.Requests)
			index[c.RequestID] = i
			result.Requests = append(result.Requests, VerifyRequestResult{RequestID: c.RequestID, Intact: true})
		}
		req := &result.Requests[i]
		req.Calls++
		if c.Outcome == ir.CallRejected {
			req.Rejects++
		}

		for _, problem := range checkCall(c, seenSeq) {
			req.Problems = append(req.Problems, problem)
			req.Intact = false
			result.AllIntact = false
		}
		seenSeq[c.Seq] = c.ID
	}

	result.TotalRequests = len(result.Requests)
	return result
}

// verifyUnits re-hashes the installed code of every unit.
func verifyUnits(ctx context.Context, st *store.Store, result *VerifyResult) error {
	units, err := st.ListUnits(ctx)
	if err != nil {
		return err
	}
	for _, u := range units {
		module, err := st.ReadModule(ctx, u.ID)
		if err != nil {
			return err
		}
		result.UnitsChecked++

		var got string
		if len(module) > 0 {
			got = ir.ModuleHash(module)
		}
		if got != u.ModuleHash {
			result.UnitProblems = append(result.UnitProblems, fmt.Sprintf("unit %s: module hash mismatch (stored %s, derived %s)",
				u.ID, truncateID(u.ModuleHash), truncateID(got)))
			result.AllIntact = false
		}
	}
	return nil
}

func checkCall(c ir.CallRecord, seenSeq map[int64]string) []string {
	var problems []string

	want, err := ir.CallID(c.RequestID, c.Seq, c.Target, c.Method, c.Arg)
	if err != nil {
		problems = append(problems, fmt.Sprintf("seq %d: %v", c.Seq, err))
	} else if want != c.ID {
		problems = append(problems, fmt.Sprintf("seq %d: %s id mismatch (stored %s, derived %s)",
			c.Seq, c.Method, truncateID(c.ID), truncateID(want)))
	}

	if other, dup := seenSeq[c.Seq]; dup {
		problems = append(problems, fmt.Sprintf("seq %d: shared with call %s", c.Seq, truncateID(other)))
	}
	if c.Outcome != ir.CallReplied && c.Outcome != ir.CallRejected {
		problems = append(problems, fmt.Sprintf("seq %d: unknown outcome %q", c.Seq, c.Outcome))
	}
	return problems
}

func outputVerifyText(w io.Writer, result VerifyResult, verbose bool) error {
	fmt.Fprintf(w, "Verify Summary: %d request(s), %d call(s)\n", result.TotalRequests, result.TotalCalls)
	fmt.Fprintln(w)

	for _, req := range result.Requests {
		status := "✓"
		if !req.Intact {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Request: %s\n", status, req.RequestID)
		if verbose || !req.Intact {
			fmt.Fprintf(w, "  Calls: %d (%d rejected)\n", req.Calls, req.Rejects)
		}
		for _, p := range req.Problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	if len(result.Requests) > 0 {
		fmt.Fprintln(w)
	}
	if result.UnitsChecked > 0 || len(result.UnitProblems) > 0 {
		fmt.Fprintf(w, "Units: %d checked\n", result.UnitsChecked)
		for _, p := range result.UnitProblems {
			fmt.Fprintf(w, "  %s\n", p)
		}
		fmt.Fprintln(w)
	}

	if result.AllIntact {
		fmt.Fprintln(w, "✓ Call log intact")
		return nil
	}

	fmt.Fprintln(w, "✗ Call log verification failed")
	return NewExitError(ExitFailure, "call log verification failed")
}
