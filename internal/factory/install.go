package factory

import (
	"context"
	"fmt"

	"github.com/roach88/mintfactory/internal/flow"
	"github.com/roach88/mintfactory/internal/hostrt"
	"github.com/roach88/mintfactory/internal/ir"
)

// Installer places code into units.
type Installer struct {
	rt hostrt.Runtime
}

// NewInstaller creates an Installer.
func NewInstaller(rt hostrt.Runtime) *Installer {
	return &Installer{rt: rt}
}

// Install makes exactly one InstallCode call in install mode. The runtime's
// rejection, with its code and message, is kept as the cause.
func (i *Installer) Install(ctx context.Context, wasm []byte, unit ir.Principal, arg []byte) error {
	if len(wasm) == 0 {
		return &Error{Stage: StageInstall, Unit: unit, Err: fmt.Errorf("empty module")}
	}

	err := i.rt.InstallCode(ctx, hostrt.InstallCodeArgs{
		Mode:   hostrt.ModeInstall,
		Unit:   unit,
		Module: wasm,
		Arg:    arg,
	})
	if err != nil {
		flow.Logger(ctx).Warn("install rejected", "unit", unit.String(), "error", err)
		return &Error{Stage: StageInstall, Unit: unit, Err: err}
	}

	flow.Logger(ctx).Debug("module installed", "unit", unit.String(), "module_hash", ir.ModuleHash(wasm))
	return nil
}
