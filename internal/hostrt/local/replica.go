// Package local is an in-process host runtime backed by SQLite.
//
// The replica keeps what a real host would keep: units with their controllers
// and installed code, cycle balances, and an append-only call log. Installed
// modules execute through Handlers registered by module hash; a unit whose
// module has no handler can be created and installed but not called.
//
// Thread-safety model:
//   - All Agent operations are serialised by the replica mutex
//   - Seq values come from one logical clock resumed from the store
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/mintfactory/internal/flow"
	"github.com/roach88/mintfactory/internal/hostrt"
	"github.com/roach88/mintfactory/internal/ir"
	"github.com/roach88/mintfactory/internal/registry"
	"github.com/roach88/mintfactory/internal/store"
)

// Management method names as they appear in the call log.
const (
	MethodCreateUnit     = "create_canister"
	MethodInstallCode    = "install_code"
	MethodUpdateSettings = "update_settings"
	MethodDeleteUnit     = "delete_canister"
	MethodModuleHash     = "canister_info"
)

// Replica is the local host runtime.
type Replica struct {
	mu       sync.Mutex
	store    *store.Store
	clock    *flow.Clock
	handlers map[string]Handler // by module hash
	logger   *slog.Logger
}

// Option configures a Replica.
type Option func(*Replica)

// WithHandler registers the handler that executes the module with the given
// hash.
func WithHandler(moduleHash string, h Handler) Option {
	return func(r *Replica) {
		r.handlers[moduleHash] = h
	}
}

// WithLogger sets the logger used for replica diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Replica) {
		r.logger = logger
	}
}

// New creates a replica over s. The logical clock continues after the
// highest seq already stored, so call-log order survives restarts.
func New(ctx context.Context, s *store.Store, opts ...Option) (*Replica, error) {
	seq, err := s.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume clock: %w", err)
	}

	r := &Replica{
		store:    s,
		clock:    flow.NewClockAt(seq),
		handlers: make(map[string]Handler),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// WithCatalog registers a development ledger for every catalog module that
// declares a mint method.
func WithCatalog(c *registry.Catalog) Option {
	return func(r *Replica) {
		for _, spec := range c.Modules() {
			if spec.Mint == nil {
				continue
			}
			r.handlers[spec.Hash] = NewLedger(spec.Mint.Method)
		}
	}
}

// Store returns the underlying store, for inspection commands.
func (r *Replica) Store() *store.Store {
	return r.store
}

// Clock returns the replica's logical clock.
func (r *Replica) Clock() *flow.Clock {
	return r.clock
}

// Fund credits cycles to p.
func (r *Replica) Fund(ctx context.Context, p ir.Principal, cycles uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Credit(ctx, p, cycles)
}

// FundIfNew credits cycles to p only when the replica has never recorded
// anything and p holds no cycles yet. It reports whether it funded.
func (r *Replica) FundIfNew(ctx context.Context, p ir.Principal, cycles uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clock.Current() != 0 {
		return false, nil
	}
	balance, err := r.store.Balance(ctx, p)
	if err != nil {
		return false, err
	}
	if balance != 0 {
		return false, nil
	}
	if err := r.store.Credit(ctx, p, cycles); err != nil {
		return false, err
	}
	return true, nil
}

// Agent returns a runtime view acting as self.
func (r *Replica) Agent(self ir.Principal) *Agent {
	return &Agent{replica: r, self: self}
}

// record appends one row to the call log. Logging failures are reported but
// never change the outcome of the operation they describe.
func (r *Replica) record(ctx context.Context, seq int64, caller, target ir.Principal, method string, arg []byte, opErr error) {
	requestID := flow.RequestID(ctx)
	id, err := ir.CallID(requestID, seq, target, method, arg)
	if err != nil {
		r.logger.Error("call id", "method", method, "error", err)
		return
	}

	call := ir.CallRecord{
		ID:        id,
		RequestID: requestID,
		Seq:       seq,
		Caller:    caller,
		Target:    target,
		Method:    method,
		Arg:       arg,
		Outcome:   ir.CallReplied,
	}
	if opErr != nil {
		call.Outcome = ir.CallRejected
		call.Message = opErr.Error()
		if rej, ok := hostrt.AsReject(opErr); ok {
			call.RejectCode = int(rej.Code)
			call.Message = rej.Message
		}
	}

	// Persist even when the request context is already cancelled.
	if err := r.store.WriteCall(context.WithoutCancel(ctx), call); err != nil {
		r.logger.Error("write call log", "method", method, "error", err)
	}
}

// storeReject converts a store failure into a host rejection.
func storeReject(unit ir.Principal, err error) *hostrt.Reject {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return hostrt.Rejectf(hostrt.DestinationInvalid, "canister %s not found", unit)
	case errors.Is(err, store.ErrInsufficientCycles):
		return hostrt.Rejectf(hostrt.CanisterReject, "%v", err)
	case errors.Is(err, store.ErrAlreadyInstalled):
		return hostrt.Rejectf(hostrt.CanisterReject, "canister %s already has a module installed", unit)
	default:
		return hostrt.Rejectf(hostrt.SysFatal, "%v", err)
	}
}

func encodeSettings(s hostrt.Settings, cycles uint64) []byte {
	controllers := make(ir.IRArray, len(s.Controllers))
	for i, c := range s.Controllers {
		controllers[i] = ir.IRString(c.String())
	}
	obj := ir.IRObject{
		"controllers":        controllers,
		"compute_allocation": ir.NatFromUint64(s.ComputeAllocation),
		"memory_allocation":  ir.NatFromUint64(s.MemoryAllocation),
		"freezing_threshold": ir.NatFromUint64(s.FreezingThreshold),
	}
	if cycles > 0 {
		obj["cycles"] = ir.NatFromUint64(cycles)
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		// Every value above is a string or a nat.
		panic(fmt.Sprintf("encode settings: %v", err))
	}
	return data
}
