package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/mintfactory/internal/flow"
	"github.com/roach88/mintfactory/internal/hostrt"
	"github.com/roach88/mintfactory/internal/ir"
	"github.com/roach88/mintfactory/internal/registry"
)

// Collection is the result of a successful create request.
type Collection struct {
	Unit       ir.Principal `json:"canister_id"`
	Module     string       `json:"wasm_name"`
	ModuleHash string       `json:"module_hash"`
	Ownership  Ownership    `json:"ownership"`
	RequestID  string       `json:"request_id"`
}

// Orchestrator runs create_collection: validate, provision, install, hand off.
//
// Thread-safety: an Orchestrator holds no per-request state and is safe for
// concurrent use when its Runtime and Registry are.
type Orchestrator struct {
	rt          hostrt.Runtime
	registry    registry.Registry
	provisioner *Provisioner
	installer   *Installer
	ids         flow.IDGenerator
	logger      *slog.Logger

	createCycles uint64
	handOff      bool
	cleanup      bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCreateCycles sets the cycle fee paid per unit.
//
// Default: DefaultCreateCycles
func WithCreateCycles(cycles uint64) Option {
	return func(o *Orchestrator) {
		o.createCycles = cycles
	}
}

// WithHandOff controls whether the factory drops its controller role after
// install. Default: true.
func WithHandOff(enabled bool) Option {
	return func(o *Orchestrator) {
		o.handOff = enabled
	}
}

// WithCleanupOnFailure controls whether a unit whose install failed is
// deleted. Default: true.
func WithCleanupOnFailure(enabled bool) Option {
	return func(o *Orchestrator) {
		o.cleanup = enabled
	}
}

// WithIDGenerator sets the request id source. Default: UUIDv7.
func WithIDGenerator(gen flow.IDGenerator) Option {
	return func(o *Orchestrator) {
		o.ids = gen
	}
}

// WithLogger sets the base logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an Orchestrator acting through rt and drawing code
// from reg.
func NewOrchestrator(rt hostrt.Runtime, reg registry.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		rt:           rt,
		registry:     reg,
		ids:          flow.UUIDv7Generator{},
		logger:       slog.Default(),
		createCycles: DefaultCreateCycles,
		handOff:      true,
		cleanup:      true,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.provisioner = NewProvisioner(rt, o.createCycles)
	o.installer = NewInstaller(rt)
	return o
}

// CreateCollection provisions a unit for caller, installs the requested
// module with a startup record naming caller as minting authority, and
// returns the new unit.
//
// Every failure returns a non-nil *Error and a zero Collection. Validation
// failures make no runtime call at all.
func (o *Orchestrator) CreateCollection(ctx context.Context, caller ir.Principal, req ir.CreateRequest) (Collection, error) {
	ctx, requestID := flow.Start(ctx, o.ids, o.logger.With("caller", caller.String()), "create_collection")
	log := flow.Logger(ctx)

	wasm, err := o.validate(caller, req)
	if err != nil {
		log.Info("create rejected", "error", err)
		return Collection{}, err
	}

	rec := NewInitRecord(caller, req)
	arg, err := rec.Encode()
	if err != nil {
		log.Error("encode init record", "error", err)
		return Collection{}, &Error{Stage: StageEncode, Err: err}
	}
	if digest, err := ir.RequestDigest("create_collection", rec.ToIR()); err == nil {
		log = log.With("digest", digest)
	}

	unit, err := o.provisioner.Provision(ctx, caller)
	if err != nil {
		log.Error("create aborted", "stage", StageProvision, "error", err)
		return Collection{}, err
	}
	state := Provisioning
	log = log.With("unit", unit.String())

	if err := o.installer.Install(ctx, wasm, unit, arg); err != nil {
		err = o.compensate(ctx, unit, err)
		log.Error("create aborted", "stage", StageInstall, "error", err)
		return Collection{}, err
	}
	if state, err = state.advance(CodeInstalled); err != nil {
		return Collection{}, &Error{Stage: StageInstall, Unit: unit, Err: err}
	}

	if o.handOff {
		err := o.rt.UpdateSettings(ctx, unit, hostrt.Settings{Controllers: []ir.Principal{caller}})
		if err != nil {
			// The caller already co-controls the unit, so it is usable.
			log.Warn("hand-off failed, factory remains a controller", "error", err)
		} else if state, err = state.advance(HandedOff); err != nil {
			return Collection{}, &Error{Stage: StageHandOff, Unit: unit, Err: err}
		}
	}

	col := Collection{
		Unit:       unit,
		Module:     req.WasmName,
		ModuleHash: ir.ModuleHash(wasm),
		Ownership:  state,
		RequestID:  requestID,
	}
	log.Info("collection created", "wasm_name", col.Module, "ownership", col.Ownership.String())
	return col, nil
}

func (o *Orchestrator) validate(caller ir.Principal, req ir.CreateRequest) ([]byte, error) {
	if caller.IsAnonymous() {
		return nil, &Error{Stage: StageValidate, Err: ErrAnonymousCaller}
	}
	wasm := o.registry.Module(req.WasmName)
	if len(wasm) == 0 {
		return nil, &Error{Stage: StageValidate, Err: fmt.Errorf("%w %q", ErrUnknownModule, req.WasmName)}
	}
	if req.SupplyCap != nil && !req.SupplyCap.Fits128() {
		return nil, &Error{Stage: StageValidate, Err: fmt.Errorf("%w: %s", ErrSupplyCapRange, req.SupplyCap)}
	}
	if req.RoyaltiesRecipient != nil {
		if err := req.RoyaltiesRecipient.Validate(); err != nil {
			return nil, &Error{Stage: StageValidate, Err: fmt.Errorf("royalties_recipient: %w", err)}
		}
	}
	return wasm, nil
}

// compensate deletes a unit whose install failed, when cleanup is enabled,
// and records on the returned error whether the unit was left behind.
func (o *Orchestrator) compensate(ctx context.Context, unit ir.Principal, installErr error) error {
	var fe *Error
	if !errors.As(installErr, &fe) {
		fe = &Error{Stage: StageInstall, Unit: unit, Err: installErr}
	}
	fe.Orphaned = true

	if !o.cleanup {
		return fe
	}
	// Cleanup runs even when the request was cancelled mid-install.
	if err := o.rt.DeleteUnit(context.WithoutCancel(ctx), unit); err != nil {
		flow.Logger(ctx).Error("delete orphaned unit", "unit", unit.String(), "error", err)
		return fe
	}
	fe.Orphaned = false
	return fe
}
