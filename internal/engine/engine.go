// Package engine runs experiments: it resolves unit names through a
// registry, fans the units out concurrently against a shared context and
// collects one Metrics entry per unit.
//
// Per-unit failures are contained. A unit that cannot be resolved, that is
// the wrong kind, that returns an error or that panics gets an error-shaped
// entry in the Results; its siblings and the experiment as a whole are not
// affected. Only failures that leave no meaningful input for the batch (the
// adversarial unit itself missing, mistyped or failing) abort the call.
package engine

import (
	"time"

	"agentarena/internal/registry"
	"agentarena/internal/types"

	"go.uber.org/zap"
)

// Stage is the per-call progression of an experiment.
type Stage string

const (
	StageReady       Stage = "ready"
	StageDispatching Stage = "dispatching"
	StageCollecting  Stage = "collecting"
	StageDone        Stage = "done"
)

// Outcome is reported to observers once per unit after it settles.
type Outcome struct {
	RunID      string
	Experiment string
	Unit       string
	Metrics    types.Metrics
	Err        error
	Duration   time.Duration
}

// Failed reports whether the unit's slot holds a contained failure.
func (o Outcome) Failed() bool { return o.Err != nil }

// Observer receives unit outcomes. UnitSettled may be called concurrently
// from several goroutines.
type Observer interface {
	UnitSettled(Outcome)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(Outcome)

func (f ObserverFunc) UnitSettled(o Outcome) { f(o) }

// Engine executes standard and adversarial experiments against a registry.
// It holds no per-call state, so one Engine can serve concurrent calls.
type Engine struct {
	registry    *registry.Registry
	logger      *zap.Logger
	concurrency int
	unitTimeout time.Duration
	observers   []Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger injects the engine logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithConcurrency bounds how many units run at once. n <= 0 means
// unbounded.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// WithUnitTimeout gives every unit run a deadline on its context. Units that
// honour their context return early; the engine never abandons a unit.
// d <= 0 disables the deadline.
func WithUnitTimeout(d time.Duration) Option {
	return func(e *Engine) { e.unitTimeout = d }
}

// WithObserver registers an observer for unit outcomes.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// New creates an Engine over reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

