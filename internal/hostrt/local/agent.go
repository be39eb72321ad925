package local

import (
	"context"
	"fmt"

	"github.com/roach88/mintfactory/internal/hostrt"
	"github.com/roach88/mintfactory/internal/ir"
	"github.com/roach88/mintfactory/internal/registry"
)

// Agent is the replica seen by one identity. It implements hostrt.Runtime.
type Agent struct {
	replica *Replica
	self    ir.Principal
}

var _ hostrt.Runtime = (*Agent)(nil)

// Self returns the identity the agent acts as.
func (a *Agent) Self() ir.Principal {
	return a.self
}

// CreateUnit creates an empty unit paid from the agent's balance. An empty
// controller list defaults to the agent itself.
func (a *Agent) CreateUnit(ctx context.Context, settings hostrt.Settings, cycles uint64) (ir.Principal, error) {
	r := a.replica
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.clock.Next()
	if len(settings.Controllers) == 0 {
		settings.Controllers = []ir.Principal{a.self}
	}
	arg := encodeSettings(settings, cycles)

	id, err := a.createUnit(ctx, seq, settings, cycles)
	target := ir.ManagementPrincipal
	if err == nil {
		target = id
	}
	r.record(ctx, seq, a.self, target, MethodCreateUnit, arg, err)
	if err != nil {
		return ir.Principal{}, err
	}
	return id, nil
}

func (a *Agent) createUnit(ctx context.Context, seq int64, settings hostrt.Settings, cycles uint64) (ir.Principal, error) {
	if len(settings.Controllers) > hostrt.MaxControllers {
		return ir.Principal{}, hostrt.Rejectf(hostrt.CanisterReject,
			"too many controllers: %d > %d", len(settings.Controllers), hostrt.MaxControllers)
	}

	unit, err := a.replica.store.CreateUnit(ctx, ir.UnitRecord{
		Controllers:       settings.Controllers,
		ComputeAllocation: settings.ComputeAllocation,
		MemoryAllocation:  settings.MemoryAllocation,
		FreezingThreshold: settings.FreezingThreshold,
		CreatedSeq:        seq,
	}, a.self, cycles)
	if err != nil {
		return ir.Principal{}, storeReject(ir.ManagementPrincipal, err)
	}
	return unit.ID, nil
}

// InstallCode places a module into an empty unit and runs its initializer.
// Only install mode is supported. A failing initializer rolls the install
// back and the unit stays empty.
func (a *Agent) InstallCode(ctx context.Context, args hostrt.InstallCodeArgs) error {
	r := a.replica
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.clock.Next()
	err := a.installCode(ctx, seq, args)
	r.record(ctx, seq, a.self, args.Unit, MethodInstallCode, encodeInstall(args), err)
	return err
}

func (a *Agent) installCode(ctx context.Context, seq int64, args hostrt.InstallCodeArgs) error {
	r := a.replica
	if args.Mode != hostrt.ModeInstall {
		return hostrt.Rejectf(hostrt.CanisterReject, "install mode %q is not supported", args.Mode)
	}

	unit, err := a.controlled(ctx, args.Unit)
	if err != nil {
		return err
	}
	if unit.ModuleHash != "" {
		return hostrt.Rejectf(hostrt.CanisterReject, "canister %s already has a module installed", args.Unit)
	}
	if !registry.IsModulePayload(args.Module) {
		return hostrt.Rejectf(hostrt.CanisterReject, "module is not a valid wasm or gzipped wasm payload (%d bytes)", len(args.Module))
	}

	if err := r.store.InstallModule(ctx, args.Unit, args.Module, args.Arg); err != nil {
		return storeReject(args.Unit, err)
	}

	h, ok := r.handlers[ir.ModuleHash(args.Module)]
	if !ok {
		return nil
	}

	unit.ModuleHash = ir.ModuleHash(args.Module)
	unit.InitArg = args.Arg
	env := Env{Store: r.store, Unit: unit, Caller: a.self, Seq: seq}
	if err := h.Init(ctx, env, args.Arg); err != nil {
		if clearErr := r.store.ClearModule(context.WithoutCancel(ctx), args.Unit); clearErr != nil {
			r.logger.Error("roll back install", "unit", args.Unit.String(), "error", clearErr)
		}
		return hostrt.Rejectf(hostrt.CanisterError, "canister %s trapped during init: %v", args.Unit, err)
	}
	return nil
}

// UpdateSettings replaces a unit's controllers and allocations. Controller only.
func (a *Agent) UpdateSettings(ctx context.Context, unitID ir.Principal, settings hostrt.Settings) error {
	r := a.replica
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.clock.Next()
	err := a.updateSettings(ctx, unitID, settings)
	r.record(ctx, seq, a.self, unitID, MethodUpdateSettings, encodeSettings(settings, 0), err)
	return err
}

func (a *Agent) updateSettings(ctx context.Context, unitID ir.Principal, settings hostrt.Settings) error {
	if len(settings.Controllers) > hostrt.MaxControllers {
		return hostrt.Rejectf(hostrt.CanisterReject,
			"too many controllers: %d > %d", len(settings.Controllers), hostrt.MaxControllers)
	}
	unit, err := a.controlled(ctx, unitID)
	if err != nil {
		return err
	}

	unit.Controllers = settings.Controllers
	unit.ComputeAllocation = settings.ComputeAllocation
	unit.MemoryAllocation = settings.MemoryAllocation
	unit.FreezingThreshold = settings.FreezingThreshold
	if err := a.replica.store.UpdateUnitSettings(ctx, unit); err != nil {
		return storeReject(unitID, err)
	}
	return nil
}

// DeleteUnit removes a unit and everything it holds. Controller only.
func (a *Agent) DeleteUnit(ctx context.Context, unitID ir.Principal) error {
	r := a.replica
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.clock.Next()
	err := a.deleteUnit(ctx, unitID)
	r.record(ctx, seq, a.self, unitID, MethodDeleteUnit, nil, err)
	return err
}

func (a *Agent) deleteUnit(ctx context.Context, unitID ir.Principal) error {
	if _, err := a.controlled(ctx, unitID); err != nil {
		return err
	}
	if err := a.replica.store.DeleteUnit(ctx, unitID); err != nil {
		return storeReject(unitID, err)
	}
	return nil
}

// ModuleHash returns the hash of the unit's module, "" when it is empty.
func (a *Agent) ModuleHash(ctx context.Context, unitID ir.Principal) (string, error) {
	r := a.replica
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.clock.Next()
	var hash string
	unit, err := r.store.ReadUnit(ctx, unitID)
	if err != nil {
		err = storeReject(unitID, err)
	} else {
		hash = unit.ModuleHash
	}
	r.record(ctx, seq, a.self, unitID, MethodModuleHash, nil, err)
	return hash, err
}

// Call invokes method on target through the handler of its module.
func (a *Agent) Call(ctx context.Context, target ir.Principal, method string, arg []byte) ([]byte, error) {
	r := a.replica
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.clock.Next()
	reply, err := a.call(ctx, seq, target, method, arg)
	r.record(ctx, seq, a.self, target, method, arg, err)
	return reply, err
}

func (a *Agent) call(ctx context.Context, seq int64, target ir.Principal, method string, arg []byte) ([]byte, error) {
	r := a.replica
	unit, err := r.store.ReadUnit(ctx, target)
	if err != nil {
		return nil, storeReject(target, err)
	}
	if unit.ModuleHash == "" {
		return nil, hostrt.Rejectf(hostrt.CanisterError, "canister %s has no wasm module", target)
	}
	h, ok := r.handlers[unit.ModuleHash]
	if !ok {
		return nil, hostrt.Rejectf(hostrt.CanisterError, "canister %s runs a module the replica cannot execute", target)
	}

	reply, err := h.Call(ctx, Env{Store: r.store, Unit: unit, Caller: a.self, Seq: seq}, method, arg)
	if err != nil {
		if rej, ok := hostrt.AsReject(err); ok {
			return nil, rej
		}
		return nil, hostrt.Rejectf(hostrt.CanisterError, "canister %s trapped: %v", target, err)
	}
	return reply, nil
}

// controlled reads a unit and checks that the agent controls it.
func (a *Agent) controlled(ctx context.Context, unitID ir.Principal) (ir.UnitRecord, error) {
	unit, err := a.replica.store.ReadUnit(ctx, unitID)
	if err != nil {
		return ir.UnitRecord{}, storeReject(unitID, err)
	}
	if !unit.HasController(a.self) {
		return ir.UnitRecord{}, hostrt.Rejectf(hostrt.CanisterReject,
			"only the controllers of canister %s can perform this call", unitID)
	}
	return unit, nil
}

func encodeInstall(args hostrt.InstallCodeArgs) []byte {
	obj := ir.IRObject{
		"mode":        ir.IRString(args.Mode),
		"module_hash": ir.IRString(ir.ModuleHash(args.Module)),
		"arg":         ir.IRBlob(args.Arg),
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		panic(fmt.Sprintf("encode install: %v", err))
	}
	return data
}
