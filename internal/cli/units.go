package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/mintfactory/internal/ir"
)

// UnitView is one unit as listed by the units command.
type UnitView struct {
	ID          string   `json:"id"`
	Module      string   `json:"module,omitempty"` // catalog name, empty if unknown or not installed
	ModuleHash  string   `json:"module_hash,omitempty"`
	Controllers []string `json:"controllers"`
	Cycles      uint64   `json:"cycles"`
	Tokens      int64    `json:"tokens"`
	TokenIDs    []string `json:"token_ids,omitempty"`
	CreatedSeq  int64    `json:"created_seq"`
}

// UnitsOptions holds flags for the units command.
type UnitsOptions struct {
	*RootOptions
	Module string // optional catalog name filter
}

// NewUnitsCommand creates the units command.
func NewUnitsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UnitsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "units",
		Short: "List units on the local replica",
		Long: `List every unit the replica holds, in creation order, with its
controllers, installed module and minted tokens. --module narrows the
list to units running one catalog module.

Example:
  mintfactory units --db ./mintfactory.db
  mintfactory units --module icrc7 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnits(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "only units running this catalog module")

	return cmd
}

func runUnits(opts *UnitsOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	st, cfg, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	cat, err := loadCatalog(cfg.ModulesDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load modules", err)
	}

	var units []ir.UnitRecord
	if opts.Module != "" {
		spec, ok := cat.Lookup(opts.Module)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown module %q", opts.Module))
		}
		units, err = st.UnitsByModule(ctx, spec.Hash)
	} else {
		units, err = st.ListUnits(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list units", err)
	}

	views := make([]UnitView, 0, len(units))
	for _, u := range units {
		v := UnitView{
			ID:          u.ID.String(),
			ModuleHash:  u.ModuleHash,
			Controllers: principalStrings(u.Controllers),
			CreatedSeq:  u.CreatedSeq,
		}
		if spec, ok := cat.ByHash(u.ModuleHash); ok {
			v.Module = spec.Name
		}
		if v.Cycles, err = st.Balance(ctx, u.ID); err != nil {
			return WrapExitError(ExitCommandError, "failed to read balance", err)
		}
		tokens, err := st.ReadTokens(ctx, u.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read tokens", err)
		}
		v.Tokens = int64(len(tokens))
		for _, tok := range tokens {
			v.TokenIDs = append(v.TokenIDs, tok.TokenID.String())
		}
		views = append(views, v)
	}

	if opts.Format == "json" {
		return formatter(cmd, opts.RootOptions).Success(views)
	}
	return outputUnitsText(cmd.OutOrStdout(), views, opts.Verbose)
}

func principalStrings(ps []ir.Principal) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

func outputUnitsText(w io.Writer, views []UnitView, verbose bool) error {
	if len(views) == 0 {
		fmt.Fprintln(w, "No units.")
		return nil
	}

	for _, v := range views {
		module := v.Module
		switch {
		case v.ModuleHash == "":
			module = "(empty)"
		case module == "":
			module = "(unknown module)"
		}
		fmt.Fprintf(w, "%s  %-16s %d token(s)\n", v.ID, module, v.Tokens)
		fmt.Fprintf(w, "  controllers: %s\n", strings.Join(v.Controllers, ", "))
		if verbose {
			fmt.Fprintf(w, "  cycles:      %d\n", v.Cycles)
			fmt.Fprintf(w, "  created:     seq %d\n", v.CreatedSeq)
			if len(v.TokenIDs) > 0 {
				fmt.Fprintf(w, "  token ids:   %s\n", strings.Join(v.TokenIDs, ", "))
			}
			if v.ModuleHash != "" {
				fmt.Fprintf(w, "  hash:        %s\n", v.ModuleHash)
			}
		}
	}
	return nil
}
