// Package testutil provides test doubles shared across packages: a
// recording host runtime and deterministic request ids.
package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/mintfactory/internal/hostrt"
	"github.com/roach88/mintfactory/internal/ir"
)

// Operation names recorded by FakeRuntime.
const (
	OpCreateUnit     = "create_unit"
	OpInstallCode    = "install_code"
	OpUpdateSettings = "update_settings"
	OpDeleteUnit     = "delete_unit"
	OpModuleHash     = "module_hash"
	OpCall           = "call"
)

// FakeCall is one operation observed by FakeRuntime.
type FakeCall struct {
	Op       string
	Unit     ir.Principal
	Settings hostrt.Settings
	Cycles   uint64
	Install  hostrt.InstallCodeArgs
	Method   string
	Arg      []byte
}

// FakeRuntime is a scripted hostrt.Runtime that records every operation.
//
// Units get sequential ids like the local replica. Each Fail* field, when
// set, is returned by the matching operation instead of succeeding. Reply
// answers Call; without it Call rejects with CanisterError.
//
// Thread-safety: safe for concurrent use; configure before first use.
type FakeRuntime struct {
	FailCreate  error
	FailInstall error
	FailUpdate  error
	FailDelete  error
	FailHash    error

	// CreateResult, when set, overrides the id returned by CreateUnit.
	CreateResult *ir.Principal

	// Reply answers Call.
	Reply func(target ir.Principal, method string, arg []byte) ([]byte, error)

	mu     sync.Mutex
	self   ir.Principal
	next   uint64
	hashes map[ir.Principal]string
	calls  []FakeCall
}

var _ hostrt.Runtime = (*FakeRuntime)(nil)

// NewFakeRuntime creates a fake acting as self.
func NewFakeRuntime(self ir.Principal) *FakeRuntime {
	return &FakeRuntime{self: self, hashes: make(map[ir.Principal]string)}
}

// Self implements hostrt.Runtime.
func (f *FakeRuntime) Self() ir.Principal {
	return f.self
}

// CreateUnit implements hostrt.Runtime.
func (f *FakeRuntime) CreateUnit(_ context.Context, settings hostrt.Settings, cycles uint64) (ir.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, FakeCall{Op: OpCreateUnit, Settings: settings, Cycles: cycles})
	if f.FailCreate != nil {
		return ir.Principal{}, f.FailCreate
	}
	if f.CreateResult != nil {
		return *f.CreateResult, nil
	}
	id := ir.UnitIDFromSeq(f.next)
	f.next++
	f.hashes[id] = ""
	return id, nil
}

// InstallCode implements hostrt.Runtime.
func (f *FakeRuntime) InstallCode(_ context.Context, args hostrt.InstallCodeArgs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, FakeCall{Op: OpInstallCode, Unit: args.Unit, Install: args})
	if f.FailInstall != nil {
		return f.FailInstall
	}
	f.hashes[args.Unit] = ir.ModuleHash(args.Module)
	return nil
}

// UpdateSettings implements hostrt.Runtime.
func (f *FakeRuntime) UpdateSettings(_ context.Context, unit ir.Principal, settings hostrt.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, FakeCall{Op: OpUpdateSettings, Unit: unit, Settings: settings})
	return f.FailUpdate
}

// DeleteUnit implements hostrt.Runtime.
func (f *FakeRuntime) DeleteUnit(_ context.Context, unit ir.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, FakeCall{Op: OpDeleteUnit, Unit: unit})
	if f.FailDelete != nil {
		return f.FailDelete
	}
	delete(f.hashes, unit)
	return nil
}

// ModuleHash implements hostrt.Runtime.
func (f *FakeRuntime) ModuleHash(_ context.Context, unit ir.Principal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, FakeCall{Op: OpModuleHash, Unit: unit})
	if f.FailHash != nil {
		return "", f.FailHash
	}
	hash, ok := f.hashes[unit]
	if !ok {
		return "", hostrt.Rejectf(hostrt.DestinationInvalid, "canister %s not found", unit)
	}
	return hash, nil
}

// Call implements hostrt.Runtime.
func (f *FakeRuntime) Call(_ context.Context, target ir.Principal, method string, arg []byte) ([]byte, error) {
	f.mu.Lock()
	reply := f.Reply
	f.calls = append(f.calls, FakeCall{Op: OpCall, Unit: target, Method: method, Arg: slices.Clone(arg)})
	f.mu.Unlock()

	if reply == nil {
		return nil, hostrt.Rejectf(hostrt.CanisterError, "no reply scripted for %s", method)
	}
	return reply(target, method, arg)
}

// SetModuleHash pretends unit runs the module with hash.
func (f *FakeRuntime) SetModuleHash(unit ir.Principal, hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes[unit] = hash
}

// Calls returns a copy of every recorded operation in order.
func (f *FakeRuntime) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Ops returns the recorded operation names in order.
func (f *FakeRuntime) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, len(f.calls))
	for i, c := range f.calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many times op was recorded.
func (f *FakeRuntime) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}
