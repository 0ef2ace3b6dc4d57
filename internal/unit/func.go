package unit

import (
	"context"

	"agentarena/internal/types"
)

// RunFunc is the function shape of Runner.Run.
type RunFunc func(ctx context.Context, tc types.Context) (types.Metrics, error)

// GenerateFunc is the function shape of Generator.GenerateContext.
type GenerateFunc func(ctx context.Context, seed types.Context) (types.Context, error)

type funcRunner struct {
	Base
	fn RunFunc
}

func (r *funcRunner) Run(ctx context.Context, tc types.Context) (types.Metrics, error) {
	return r.fn(ctx, tc)
}

// NewRunner adapts fn into a Runner named name.
func NewRunner(name string, fn RunFunc) (Runner, error) {
	b, err := NewBase(name)
	if err != nil {
		return nil, err
	}
	return &funcRunner{Base: b, fn: fn}, nil
}

type funcGenerator struct {
	AdversarialBase
	fn GenerateFunc
}

func (g *funcGenerator) GenerateContext(ctx context.Context, seed types.Context) (types.Context, error) {
	return g.fn(ctx, seed)
}

// NewGenerator adapts fn into a Generator named name. The returned unit
// carries the AdversarialBase guard, so Run on it fails.
func NewGenerator(name string, fn GenerateFunc) (Generator, error) {
	b, err := NewAdversarialBase(name)
	if err != nil {
		return nil, err
	}
	return &funcGenerator{AdversarialBase: b, fn: fn}, nil
}
