package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/mintfactory/internal/flow"
	"github.com/roach88/mintfactory/internal/ir"
)

// MintOptions holds flags for the mint command.
type MintOptions struct {
	*RootOptions
	Args string
}

// NewMintCommand creates the mint command.
func NewMintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a token through the factory",
		Long: `Relay a mint request to a collection created by the factory.

The outcome is ok with the token id, err with the collection's reason,
or other when the request never reached a collection.

Example:
  mintfactory mint --args '{"id":1,"name":"Punk #1","image":"ipfs://punk1",
    "to":{"owner":"rwlgt-iiaaa-aaaaa-aaaaa-cai"},
    "canister_name":"icrc7","canister_id":"rwlgt-iiaaa-aaaaa-aaaaa-cai"}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mintToken(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "mint request as JSON")

	return cmd
}

func mintToken(opts *MintOptions, cmd *cobra.Command) error {
	out := formatter(cmd, opts.RootOptions)

	var req ir.MintRequest
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

	ctx, requestID := flow.Start(ctx, flow.UUIDv7Generator{}, e.logger, "mint")
	outcome := e.proxy().Mint(ctx, req)

	switch outcome.Kind {
	case ir.OutcomeOK:
		if opts.Format == "json" {
			return out.SuccessWithRequest(outcome, requestID)
		}
		return out.SuccessWithRequest("Minted token "+outcome.ID.String(), requestID)
	case ir.OutcomeErr:
		out.ErrorWithRequest(CodeMintErr, outcome.Message, nil, requestID)
	default:
		out.ErrorWithRequest(CodeMintOther, outcome.Message, nil, requestID)
	}
	return NewExitError(ExitFailure, "mint_proxy: "+outcome.String())
}
