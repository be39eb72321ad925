package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// FundOptions holds flags for the fund command.
type FundOptions struct {
	*RootOptions
	To string
}

// FundResult reports a principal's balance after funding.
type FundResult struct {
	Principal string `json:"principal"`
	Credited  uint64 `json:"credited"`
	Balance   uint64 `json:"balance"`
}

// NewFundCommand creates the fund command.
func NewFundCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FundOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fund <cycles>",
		Short: "Credit cycles on the local replica",
		Long: `Credit cycles to a principal on the local replica. Without --to the
factory itself is funded, which is what create draws on.

Example:
  mintfactory fund 5000000000000
  mintfactory fund 1000000 --to alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFund(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", "", "principal or seed to fund (default: the factory)")

	return cmd
}

func runFund(opts *FundOptions, amount string, cmd *cobra.Command) error {
	cycles, err := strconv.ParseUint(amount, 10, 64)
	if err != nil || cycles == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid cycles %q: must be a positive integer", amount))
	}

	ctx := commandContext(cmd)
	e, err := openEnv(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.Close()

	target := e.self
	if opts.To != "" {
		target = parseCaller(opts.To)
	}
	if target.IsAnonymous() {
		return NewExitError(ExitCommandError, "cannot fund the anonymous principal")
	}

	if err := e.replica.Fund(ctx, target, cycles); err != nil {
		return WrapExitError(ExitFailure, "fund failed", err)
	}
	balance, err := e.store.Balance(ctx, target)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read balance", err)
	}

	result := FundResult{Principal: target.String(), Credited: cycles, Balance: balance}
	if opts.Format == "json" {
		return formatter(cmd, opts.RootOptions).Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Funded %s with %d cycles (balance %d)\n", result.Principal, cycles, balance)
	return nil
}
