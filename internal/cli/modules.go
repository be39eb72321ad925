package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewModulesCommand creates the modules command.
func NewModulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List installable modules",
		Long: `List the modules create accepts as wasm_name, with their kind and
whether mint can reach collections built from them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModules(rootOpts, cmd)
		},
	}

	return cmd
}

func runModules(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	cat, err := loadCatalog(cfg.ModulesDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load modules", err)
	}

	modules := cat.Modules()
	if opts.Format == "json" {
		return formatter(cmd, opts).Success(modules)
	}

	w := cmd.OutOrStdout()
	for _, m := range modules {
		mint := "no mint"
		if m.Mint != nil {
			mint = "mint via " + m.Mint.Method
		}
		fmt.Fprintf(w, "%-10s %-10s %s\n", m.Name, m.Kind, mint)
		if opts.Verbose {
			if m.Description != "" {
				fmt.Fprintf(w, "  %s\n", m.Description)
			}
			fmt.Fprintf(w, "  %s (%d bytes)\n", m.Hash, m.Size)
		}
	}
	return nil
}
