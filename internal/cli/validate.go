package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/mintfactory/internal/compiler"
	"github.com/roach88/mintfactory/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                       `json:"valid"`
	Modules []ir.ModuleSpec            `json:"modules,omitempty"`
	Errors  []compiler.ValidationError `json:"errors,omitempty"`
}

// Codes for failures that are not catalog rule violations.
const (
	ErrCodeConfig  = "E001" // config file unreadable or invalid
	ErrCodeCompile = "E002" // catalog.cue does not compile
	ErrCodeLoad    = "E003" // directory or payload unreadable
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [modules-dir]",
		Short: "Validate config and module catalog",
		Long: `Validate the config file and a module catalog without touching the
database.

The catalog is read from modules-dir when given, otherwise from the
config's modules_dir, otherwise the embedded catalog is checked.

Example:
  mintfactory validate ./modules
  mintfactory validate --config ./mintfactory.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, modulesDir string, cmd *cobra.Command) error {
	out := formatter(cmd, opts)

	cfg, err := loadConfig(opts)
	if err != nil {
		return outputValidationErrors(out, []compiler.ValidationError{{
			Field: "config", Message: err.Error(), Code: ErrCodeConfig,
		}})
	}
	if modulesDir == "" {
		modulesDir = cfg.ModulesDir
	}
	if modulesDir == "" {
		out.VerboseLog("Validating embedded catalog")
	} else {
		out.VerboseLog("Validating catalog in %s", modulesDir)
	}

	cat, err := loadCatalog(modulesDir)
	if err != nil {
		return outputValidationErrors(out, []compiler.ValidationError{catalogError(err)})
	}

	modules := cat.Modules()
	for _, m := range modules {
		out.VerboseLog("Module %s: kind %s, %d bytes, %s", m.Name, m.Kind, m.Size, m.Hash)
	}
	return outputValidateSuccess(out, modules)
}

// catalogError classifies a catalog load failure.
func catalogError(err error) compiler.ValidationError {
	var ve compiler.ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return compiler.ValidationError{Field: ce.Field, Message: err.Error(), Code: ErrCodeCompile}
	}
	return compiler.ValidationError{Field: "modules", Message: err.Error(), Code: ErrCodeLoad}
}

func outputValidateSuccess(out *OutputFormatter, modules []ir.ModuleSpec) error {
	if out.Format == "json" {
		return out.Success(ValidationResult{Valid: true, Modules: modules})
	}
	fmt.Fprintf(out.Writer, "✓ Config and catalog valid (%d module(s))\n", len(modules))
	return nil
}

func outputValidationErrors(out *OutputFormatter, errs []compiler.ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if out.Format == "json" {
		if err := out.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(out.Writer, "✗ Validation failed")
	fmt.Fprintln(out.Writer)
	for _, err := range errs {
		fmt.Fprintf(out.Writer, "  %s: %s\n", err.Code, err.Message)
	}
	return failure
}
