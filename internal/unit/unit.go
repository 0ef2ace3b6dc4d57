// Package unit defines the contracts every experiment unit satisfies.
//
// A unit is one of two capability variants:
//   - Runner: performs the task and returns Metrics.
//   - Generator: produces a (usually adversarial) Context for other units.
//
// The variant is determined by KindOf, not by which methods happen to be
// present: adversarial units embed AdversarialBase, which supplies a Run
// method that always fails, so a Generator misplaced in a runner slot fails
// loudly instead of producing meaningless metrics.
package unit

import (
	"context"
	"strings"

	"agentarena/internal/types"
)

// Kind is the capability tag of a unit.
type Kind string

const (
	KindRunner    Kind = "runner"
	KindGenerator Kind = "generator"
	KindUnknown   Kind = "unknown"
)

// Unit is anything that can be registered: it only has to carry a name.
type Unit interface {
	Name() string
}

// Runner is an ordinary task-performing unit.
//
// Run must treat tc as read-only; the engine hands the same Context value to
// every runner of an experiment concurrently.
type Runner interface {
	Unit
	Run(ctx context.Context, tc types.Context) (types.Metrics, error)
}

// Generator is an adversarial unit that produces a Context instead of
// Metrics. seed may be nil. By convention the generated context keeps every
// seed key except those the generator documents as overwritten.
type Generator interface {
	Unit
	GenerateContext(ctx context.Context, seed types.Context) (types.Context, error)
}

// KindOf returns the capability variant of u. Generator wins over Runner
// because adversarial units also carry the guard Run from AdversarialBase.
func KindOf(u Unit) Kind {
	switch u.(type) {
	case Generator:
		return KindGenerator
	case Runner:
		return KindRunner
	default:
		return KindUnknown
	}
}

// AsRunner returns u as a Runner, or an error when u is a Generator or has
// no run capability at all.
func AsRunner(u Unit) (Runner, error) {
	switch KindOf(u) {
	case KindRunner:
		return u.(Runner), nil
	case KindGenerator:
		return nil, &UnsupportedOperationError{Unit: u.Name(), Operation: "Run"}
	default:
		return nil, &UnsupportedOperationError{Unit: u.Name(), Operation: "Run", NoCapability: true}
	}
}

// Base carries an immutable, validated unit name. Embed it in concrete units.
type Base struct {
	name string
}

// NewBase validates name and returns a Base holding it.
func NewBase(name string) (Base, error) {
	if strings.TrimSpace(name) == "" {
		return Base{}, &InvalidNameError{Name: name}
	}
	return Base{name: name}, nil
}

// MustBase is NewBase for package-level unit construction; it panics on an
// invalid name.
func MustBase(name string) Base {
	b, err := NewBase(name)
	if err != nil {
		panic(err)
	}
	return b
}

// Name returns the unit name.
func (b Base) Name() string { return b.name }

// AdversarialBase is the embeddable base for Generator implementations.
type AdversarialBase struct {
	Base
}

// NewAdversarialBase validates name and returns an AdversarialBase.
func NewAdversarialBase(name string) (AdversarialBase, error) {
	b, err := NewBase(name)
	if err != nil {
		return AdversarialBase{}, err
	}
	return AdversarialBase{Base: b}, nil
}

// MustAdversarialBase is NewAdversarialBase that panics on an invalid name.
func MustAdversarialBase(name string) AdversarialBase {
	return AdversarialBase{Base: MustBase(name)}
}

// Run always fails: adversarial units produce contexts, they do not perform
// tasks. Use GenerateContext instead.
func (a AdversarialBase) Run(context.Context, types.Context) (types.Metrics, error) {
	return nil, &UnsupportedOperationError{Unit: a.Name(), Operation: "Run"}
}
