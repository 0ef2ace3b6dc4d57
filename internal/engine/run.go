package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentarena/internal/experiment"
	"agentarena/internal/logging"
	"agentarena/internal/types"
	"agentarena/internal/unit"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// slowBatch is the threshold past which a batch is logged as slow.
const slowBatch = 30 * time.Second

// Run dispatches a loaded descriptor to the protocol it selects.
func (e *Engine) Run(ctx context.Context, d *experiment.Descriptor) (types.Results, error) {
	if d.IsAdversarial() {
		return e.RunAdversarial(ctx, d.Adversarial())
	}
	return e.RunExperiment(ctx, d.Standard())
}

// RunExperiment runs every variant against exp.Context and returns once all
// of them have settled. Failures are recorded per unit, never returned.
func (e *Engine) RunExperiment(ctx context.Context, exp experiment.Experiment) (types.Results, error) {
	if e.registry == nil {
		return nil, ErrNoRegistry
	}
	runID := uuid.NewString()
	log := e.logger.With(zap.String("run_id", runID), zap.String("experiment", exp.Name))
	log.Info("Starting experiment", zap.Strings("variants", exp.Variants))

	results := e.runBatch(ctx, log, runID, exp.Name, exp.Variants, exp.Context)

	log.Info("Experiment finished",
		zap.Int("succeeded", len(results.Succeeded())),
		zap.Int("failed", len(results.Failed())))
	return results, nil
}

// RunAdversarial asks the adversarial variant for a context once, then runs
// every target against that context. Resolving, type-checking or running
// the adversarial unit aborts the call; target failures are contained.
func (e *Engine) RunAdversarial(ctx context.Context, exp experiment.AdversarialExperiment) (types.Results, error) {
	if e.registry == nil {
		return nil, ErrNoRegistry
	}
	runID := uuid.NewString()
	log := e.logger.With(
		zap.String("run_id", runID),
		zap.String("experiment", exp.Name),
		zap.String("adversary", exp.AdversarialVariant))
	log.Info("Starting adversarial experiment", zap.Strings("targets", exp.TargetVariants))

	u, err := e.registry.Get(exp.AdversarialVariant)
	if err != nil {
		log.Error("Adversarial unit not resolvable", zap.Error(err))
		return nil, fmt.Errorf("adversarial experiment %q: %w", exp.Name, err)
	}
	gen, ok := u.(unit.Generator)
	if !ok {
		err := &TypeMismatchError{Unit: u.Name(), Want: unit.KindGenerator, Got: unit.KindOf(u)}
		log.Error("Adversarial slot holds a non-generator unit", zap.Error(err))
		return nil, fmt.Errorf("adversarial experiment %q: %w", exp.Name, err)
	}

	generated, err := e.generate(ctx, gen, exp.SeedContext)
	if err != nil {
		genErr := &GenerationError{Unit: gen.Name(), Err: err}
		log.Error("Context generation failed", zap.Error(genErr))
		return nil, fmt.Errorf("adversarial experiment %q: %w", exp.Name, genErr)
	}
	if missing := generated.MissingKeys(exp.SeedContext); len(missing) > 0 {
		log.Warn("Generated context dropped seed keys", zap.Strings("missing", missing))
	}
	log.Debug("Context generated", zap.Strings("keys", generated.Keys()))

	results := e.runBatch(ctx, log, runID, exp.Name, exp.TargetVariants, generated)

	log.Info("Adversarial experiment finished",
		zap.Int("succeeded", len(results.Succeeded())),
		zap.Int("failed", len(results.Failed())))
	return results, nil
}

// generate calls GenerateContext on a private copy of the seed so a
// misbehaving generator cannot mutate the caller's context. A nil seed
// stays nil; a nil result becomes an empty context.
func (e *Engine) generate(ctx context.Context, gen unit.Generator, seed types.Context) (out types.Context, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Unit: gen.Name(), Value: p}
		}
	}()

	var input types.Context
	if seed != nil {
		input = seed.Clone()
	}
	out, err = gen.GenerateContext(ctx, input)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = types.Context{}
	}
	return out, nil
}

// runBatch fans names out against tc and joins on every unit. Every task
// returns nil so the errgroup is a plain wait-all; outcomes are collected
// under mu. Duplicate names run once.
func (e *Engine) runBatch(ctx context.Context, log *zap.Logger, runID, expName string, names []string, tc types.Context) types.Results {
	timer := logging.StartTimer(log, "batch")
	defer timer.StopWithThreshold(slowBatch)

	e.stage(log, StageReady)
	unique := dedupe(names)
	results := make(types.Results, len(unique))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}

	e.stage(log, StageDispatching)
	for _, name := range unique {
		g.Go(func() error {
			start := time.Now()
			metrics, err := e.runOne(ctx, name, tc)
			elapsed := time.Since(start)

			if err != nil {
				metrics = types.ErrorMetrics(err)
				log.Warn("Unit failed", zap.String("unit", name), zap.Error(err), zap.Duration("elapsed", elapsed))
			} else {
				log.Debug("Unit settled", zap.String("unit", name), zap.Duration("elapsed", elapsed))
			}

			mu.Lock()
			results[name] = metrics
			mu.Unlock()

			e.notify(Outcome{
				RunID:      runID,
				Experiment: expName,
				Unit:       name,
				Metrics:    metrics,
				Err:        err,
				Duration:   elapsed,
			})
			return nil
		})
	}

	e.stage(log, StageCollecting)
	_ = g.Wait()
	e.stage(log, StageDone)
	return results
}

// runOne resolves and runs a single unit, converting a panic into an error.
func (e *Engine) runOne(ctx context.Context, name string, tc types.Context) (m types.Metrics, err error) {
	u, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	r, err := unit.AsRunner(u)
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			m, err = nil, &PanicError{Unit: name, Value: p}
		}
	}()

	if e.unitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.unitTimeout)
		defer cancel()
	}

	m, err = r.Run(ctx, tc)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = types.Metrics{}
	}
	return m, nil
}

func (e *Engine) notify(o Outcome) {
	for _, obs := range e.observers {
		obs.UnitSettled(o)
	}
}

func (e *Engine) stage(log *zap.Logger, s Stage) {
	log.Debug("Experiment stage", zap.String("stage", string(s)))
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
