package unit

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is returned when a unit is constructed with an empty name.
	ErrInvalidName = errors.New("invalid unit name")
	// ErrUnsupportedOperation is returned when a unit is driven through the
	// wrong protocol, e.g. Run on an adversarial unit.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// InvalidNameError reports a unit constructed with an empty or blank name.
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid unit name %q: name must be non-empty", e.Name)
}

func (e *InvalidNameError) Is(target error) bool { return target == ErrInvalidName }

// UnsupportedOperationError reports a protocol misuse on a unit.
type UnsupportedOperationError struct {
	Unit      string
	Operation string
	// NoCapability is set when the unit implements neither Runner nor
	// Generator.
	NoCapability bool
}

func (e *UnsupportedOperationError) Error() string {
	if e.NoCapability {
		return fmt.Sprintf("unit %q does not support %s: no runnable capability", e.Unit, e.Operation)
	}
	return fmt.Sprintf("unit %q is adversarial and does not support %s: use GenerateContext instead", e.Unit, e.Operation)
}

func (e *UnsupportedOperationError) Is(target error) bool { return target == ErrUnsupportedOperation }
