package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/mintfactory/internal/iface"
)

// InterfaceOptions holds flags for the interface command.
type InterfaceOptions struct {
	*RootOptions
	Output string // output file path
}

// NewInterfaceCommand creates the interface command.
func NewInterfaceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InterfaceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "interface",
		Short: "Print the factory's interface description",
		Long: `Print the factory's public interface: create_collection and
mint_proxy with their argument and result types.

Text format prints Candid. JSON format prints the structured description.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printInterface(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the Candid text to a file")

	return cmd
}

func printInterface(opts *InterfaceOptions, cmd *cobra.Command) error {
	out := formatter(cmd, opts.RootOptions)

	spec, err := iface.Describe()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to describe interface", err)
	}
	text := iface.Candid(spec)

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(text), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output file", err)
		}
		out.VerboseLog("wrote %s", opts.Output)
	}

	if opts.Format == "json" {
		return out.Success(spec)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), text)
	return err
}
