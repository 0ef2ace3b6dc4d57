package units

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingInput is returned when a required context key is absent.
	ErrMissingInput = errors.New("missing required input")
	// ErrInvalidInput is returned when a context value has the wrong shape.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbiddenImport is returned when a script imports a package outside
	// the allowed set.
	ErrForbiddenImport = errors.New("forbidden import")
)

// MissingInputError names the absent context key.
type MissingInputError struct {
	Unit string
	Key  string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s: context key %q is required", e.Unit, e.Key)
}

func (e *MissingInputError) Is(target error) bool { return target == ErrMissingInput }

// InvalidInputError names the context key whose value could not be used.
type InvalidInputError struct {
	Unit   string
	Key    string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s: context key %q: %s", e.Unit, e.Key, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }
