// Package hostrt defines the contract between the factory and the host
// runtime that owns units: creating them, installing code, changing their
// controllers and calling their methods.
//
// A Runtime value is an agent bound to one identity. Every operation is
// performed as that identity.
package hostrt

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/mintfactory/internal/ir"
)

// MaxControllers is the largest controller set a unit may carry.
const MaxControllers = 10

// Settings are the controller and allocation settings of a unit.
type Settings struct {
	Controllers       []ir.Principal `json:"controllers"`
	ComputeAllocation uint64         `json:"compute_allocation"`
	MemoryAllocation  uint64         `json:"memory_allocation"`
	FreezingThreshold uint64         `json:"freezing_threshold"`
}

// InstallMode selects how code is placed into a unit.
type InstallMode string

const (
	ModeInstall   InstallMode = "install"
	ModeReinstall InstallMode = "reinstall"
	ModeUpgrade   InstallMode = "upgrade"
)

// InstallCodeArgs is the argument of InstallCode.
type InstallCodeArgs struct {
	Mode   InstallMode
	Unit   ir.Principal
	Module []byte
	Arg    []byte
}

// Runtime is the host runtime as seen by one identity.
type Runtime interface {
	// Self is the identity this agent acts as.
	Self() ir.Principal

	// CreateUnit creates an empty unit and pays cycles from the agent's
	// balance.
	CreateUnit(ctx context.Context, settings Settings, cycles uint64) (ir.Principal, error)

	// InstallCode places a module into a unit and runs its initializer.
	InstallCode(ctx context.Context, args InstallCodeArgs) error

	// UpdateSettings replaces a unit's settings. Controller only.
	UpdateSettings(ctx context.Context, unit ir.Principal, settings Settings) error

	// DeleteUnit removes a unit. Controller only.
	DeleteUnit(ctx context.Context, unit ir.Principal) error

	// ModuleHash returns the hash of the installed module, or "" for an
	// empty unit. Anyone may ask.
	ModuleHash(ctx context.Context, unit ir.Principal) (string, error)

	// Call invokes a method on a unit with canonical argument bytes and
	// returns the raw reply.
	Call(ctx context.Context, target ir.Principal, method string, arg []byte) ([]byte, error)
}

// RejectCode classifies a rejection the way the host does.
type RejectCode int

const (
	SysFatal           RejectCode = 1
	SysTransient       RejectCode = 2
	DestinationInvalid RejectCode = 3
	CanisterReject     RejectCode = 4
	CanisterError      RejectCode = 5
)

var rejectCodeNames = map[RejectCode]string{
	SysFatal:           "SysFatal",
	SysTransient:       "SysTransient",
	DestinationInvalid: "DestinationInvalid",
	CanisterReject:     "CanisterReject",
	CanisterError:      "CanisterError",
}

func (c RejectCode) String() string {
	if name, ok := rejectCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("RejectCode(%d)", int(c))
}

// ParseRejectCode maps a code name back to its value.
func ParseRejectCode(name string) (RejectCode, error) {
	for code, n := range rejectCodeNames {
		if n == name {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown reject code %q", name)
}

// Reject is a refusal reported by the host or by the target unit.
type Reject struct {
	Code    RejectCode
	Message string
}

func (r *Reject) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Rejectf builds a Reject with a formatted message.
func Rejectf(code RejectCode, format string, args ...any) *Reject {
	return &Reject{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsReject extracts a *Reject from err's chain.
func AsReject(err error) (*Reject, bool) {
	var r *Reject
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
