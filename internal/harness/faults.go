package harness

import (
	"context"
	"sync"

	"github.com/roach88/mintfactory/internal/hostrt"
	"github.com/roach88/mintfactory/internal/ir"
	"github.com/roach88/mintfactory/internal/testutil"
)

// faultRuntime sits in front of a runtime and rejects the operations named
// by the scenario's faults. Rejected operations never reach the replica, so
// they leave no call-log row.
type faultRuntime struct {
	hostrt.Runtime

	mu     sync.Mutex
	faults []Fault
	fired  []int
}

func newFaultRuntime(rt hostrt.Runtime, faults []Fault) *faultRuntime {
	return &faultRuntime{Runtime: rt, faults: faults, fired: make([]int, len(faults))}
}

// inject returns the reject for op, or nil when no fault applies.
func (f *faultRuntime) inject(op, method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, fault := range f.faults {
		if fault.Op != op || (fault.Method != "" && fault.Method != method) {
			continue
		}
		if fault.Times > 0 && f.fired[i] >= fault.Times {
			continue
		}
		f.fired[i]++
		// Codes were checked when the scenario loaded.
		code, _ := hostrt.ParseRejectCode(fault.Code)
		return &hostrt.Reject{Code: code, Message: fault.Message}
	}
	return nil
}

func (f *faultRuntime) CreateUnit(ctx context.Context, settings hostrt.Settings, cycles uint64) (ir.Principal, error) {
	if err := f.inject(testutil.OpCreateUnit, ""); err != nil {
		return ir.Principal{}, err
	}
	return f.Runtime.CreateUnit(ctx, settings, cycles)
}

func (f *faultRuntime) InstallCode(ctx context.Context, args hostrt.InstallCodeArgs) error {
	if err := f.inject(testutil.OpInstallCode, ""); err != nil {
		return err
	}
	return f.Runtime.InstallCode(ctx, args)
}

func (f *faultRuntime) UpdateSettings(ctx context.Context, unit ir.Principal, settings hostrt.Settings) error {
	if err := f.inject(testutil.OpUpdateSettings, ""); err != nil {
		return err
	}
	return f.Runtime.UpdateSettings(ctx, unit, settings)
}

func (f *faultRuntime) DeleteUnit(ctx context.Context, unit ir.Principal) error {
	if err := f.inject(testutil.OpDeleteUnit, ""); err != nil {
		return err
	}
	return f.Runtime.DeleteUnit(ctx, unit)
}

func (f *faultRuntime) ModuleHash(ctx context.Context, unit ir.Principal) (string, error) {
	if err := f.inject(testutil.OpModuleHash, ""); err != nil {
		return "", err
	}
	return f.Runtime.ModuleHash(ctx, unit)
}

func (f *faultRuntime) Call(ctx context.Context, target ir.Principal, method string, arg []byte) ([]byte, error) {
	if err := f.inject(testutil.OpCall, method); err != nil {
		return nil, err
	}
	return f.Runtime.Call(ctx, target, method, arg)
}
