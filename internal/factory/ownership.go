package factory

import "fmt"

// Ownership tracks who controls a unit during a create request.
type Ownership int

const (
	// Provisioning: the unit is being created or is empty. The caller and
	// the factory both control it.
	Provisioning Ownership = iota
	// CodeInstalled: the module is installed; the factory still co-controls.
	CodeInstalled
	// HandedOff: the caller is the only controller.
	HandedOff
)

var ownershipNames = [...]string{"provisioning", "code_installed", "handed_off"}

func (o Ownership) String() string {
	if int(o) < len(ownershipNames) {
		return ownershipNames[o]
	}
	return fmt.Sprintf("Ownership(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Ownership) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// advance moves to next. Ownership only moves forward one step at a time.
func (o Ownership) advance(next Ownership) (Ownership, error) {
	if next != o+1 {
		return o, fmt.Errorf("ownership cannot move from %s to %s", o, next)
	}
	return next, nil
}
