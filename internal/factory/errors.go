package factory

import (
	"errors"
	"fmt"

	"github.com/roach88/mintfactory/internal/ir"
)

// Stage names the step of a create request that failed.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageProvision Stage = "provision"
	StageEncode    Stage = "encode"
	StageInstall   Stage = "install"
	StageHandOff   Stage = "hand_off"
)

// Sentinel errors wrapped by Error.
var (
	// ErrUnknownModule means wasm_name is not in the registry.
	ErrUnknownModule = errors.New("unknown module")

	// ErrSupplyCapRange means supply_cap does not fit in 128 bits.
	ErrSupplyCapRange = errors.New("supply_cap exceeds 128 bits")

	// ErrAnonymousCaller means the request carried no caller identity.
	ErrAnonymousCaller = errors.New("anonymous caller")

	// ErrSentinelAddress means the runtime answered a create with the
	// anonymous id, which is never a real unit.
	ErrSentinelAddress = errors.New("runtime returned the sentinel address")
)

// Error reports why a create request was aborted.
//
// Unit is set once a unit exists. Orphaned is true when that unit could not
// be cleaned up and still exists on the host runtime, controlled by the
// caller and the factory.
type Error struct {
	Stage    Stage
	Unit     ir.Principal
	Orphaned bool
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	if e.Orphaned {
		msg += fmt.Sprintf(" (unit %s orphaned)", e.Unit)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsStage reports whether err is a factory Error raised at stage.
// Uses errors.As to handle wrapped errors.
func IsStage(err error, stage Stage) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Stage == stage
	}
	return false
}

// IsValidation reports whether err was raised before any runtime call.
func IsValidation(err error) bool {
	return IsStage(err, StageValidate)
}
