package engine

import (
	"errors"
	"fmt"

	"agentarena/internal/unit"
)

var (
	// ErrNoRegistry is returned when an Engine was built without a registry.
	ErrNoRegistry = errors.New("engine has no registry")
	// ErrTypeMismatch is returned when the adversarial slot resolves to a
	// unit that cannot generate contexts.
	ErrTypeMismatch = errors.New("unit capability mismatch")
	// ErrGeneration is returned when the adversarial unit fails to produce a
	// context.
	ErrGeneration = errors.New("context generation failed")
	// ErrUnitPanic marks a unit that panicked instead of returning an error.
	ErrUnitPanic = errors.New("unit panicked")
)

// TypeMismatchError reports a unit resolved into a slot whose protocol it
// does not support.
type TypeMismatchError struct {
	Unit string
	Want unit.Kind
	Got  unit.Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("unit %q is a %s, experiment requires a %s", e.Unit, e.Got, e.Want)
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

// GenerationError wraps the failure of an adversarial unit's
// GenerateContext. It aborts the whole adversarial experiment.
type GenerationError struct {
	Unit string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("adversarial unit %q failed to generate context: %v", e.Unit, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// PanicError carries the value recovered from a panicking unit.
type PanicError struct {
	Unit  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("unit %q panicked: %v", e.Unit, e.Value)
}

func (e *PanicError) Is(target error) bool { return target == ErrUnitPanic }
