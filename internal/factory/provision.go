package factory

import (
	"context"

	"github.com/roach88/mintfactory/internal/flow"
	"github.com/roach88/mintfactory/internal/hostrt"
	"github.com/roach88/mintfactory/internal/ir"
)

// DefaultCreateCycles is the cycle fee attached to every unit creation.
const DefaultCreateCycles uint64 = 200_000_000_000

// Provisioner creates empty units on the host runtime.
type Provisioner struct {
	rt     hostrt.Runtime
	cycles uint64
}

// NewProvisioner creates a Provisioner paying cycles per unit. Zero means
// DefaultCreateCycles.
func NewProvisioner(rt hostrt.Runtime, cycles uint64) *Provisioner {
	if cycles == 0 {
		cycles = DefaultCreateCycles
	}
	return &Provisioner{rt: rt, cycles: cycles}
}

// Provision creates one empty unit controlled by requester and the factory.
// It makes exactly one CreateUnit call.
func (p *Provisioner) Provision(ctx context.Context, requester ir.Principal) (ir.Principal, error) {
	settings := hostrt.Settings{
		Controllers: []ir.Principal{requester, p.rt.Self()},
	}

	unit, err := p.rt.CreateUnit(ctx, settings, p.cycles)
	if err != nil {
		flow.Logger(ctx).Warn("create unit rejected", "error", err)
		return ir.Principal{}, &Error{Stage: StageProvision, Err: err}
	}
	if unit.IsAnonymous() {
		return ir.Principal{}, &Error{Stage: StageProvision, Err: ErrSentinelAddress}
	}

	flow.Logger(ctx).Debug("unit created", "unit", unit.String(), "cycles", p.cycles)
	return unit, nil
}
