package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/mintfactory/internal/factory"
	"github.com/roach88/mintfactory/internal/ir"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Caller string
	Args   string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an NFT collection",
		Long: `Provision a new unit, install the requested collection module with
the caller as minting authority, and hand control to the caller.

The caller is a principal in text form, "anonymous", or a seed from which
a principal is derived.

Example:
  mintfactory create --caller alice \
    --args '{"name":"Punks","symbol":"PNK","wasm_name":"icrc7"}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return createCollection(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Caller, "caller", "", "requesting principal, or a seed to derive one from")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "create request as JSON")

	return cmd
}

func createCollection(opts *CreateOptions, cmd *cobra.Command) error {
	out := formatter(cmd, opts.RootOptions)

	var req ir.CreateRequest
	if err := decodeStrict(opts.Args, &req); err != nil {
		out.Error(CodeInvalidArgs, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --args", err)
	}

	ctx := commandContext(cmd)
	e, err := openEnv(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.Close()

	caller := parseCaller(opts.Caller)
	out.VerboseLog("caller: %s", caller)

	col, err := e.orchestrator().CreateCollection(ctx, caller, req)
	if err != nil {
		out.Error(CodeCreateFailed, err.Error(), createErrorDetails(err))
		return WrapExitError(ExitFailure, "create_collection failed", err)
	}

	if opts.Format == "json" {
		return out.SuccessWithRequest(col, col.RequestID)
	}
	return out.SuccessWithRequest(fmt.Sprintf("Created %s (%s, %s)", col.Unit, col.Module, col.Ownership), col.RequestID)
}

func createErrorDetails(err error) map[string]any {
	var fe *factory.Error
	if !errors.As(err, &fe) {
		return nil
	}
	details := map[string]any{"stage": string(fe.Stage)}
	if !fe.Unit.IsManagement() {
		details["unit"] = fe.Unit.String()
		details["orphaned"] = fe.Orphaned
	}
	return details
}

// decodeStrict decodes a JSON object, rejecting unknown fields and trailing data.
func decodeStrict(s string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid --args JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid --args JSON: trailing data")
	}
	return nil
}
