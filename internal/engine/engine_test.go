package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"agentarena/internal/experiment"
	"agentarena/internal/registry"
	"agentarena/internal/types"
	"agentarena/internal/unit"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// FIXTURES
// =============================================================================

func runner(t *testing.T, name string, fn unit.RunFunc) unit.Runner {
	t.Helper()
	r, err := unit.NewRunner(name, fn)
	require.NoError(t, err)
	return r
}

func generator(t *testing.T, name string, fn unit.GenerateFunc) unit.Generator {
	t.Helper()
	g, err := unit.NewGenerator(name, fn)
	require.NoError(t, err)
	return g
}

func okUnit(t *testing.T, name string) unit.Runner {
	return runner(t, name, func(context.Context, types.Context) (types.Metrics, error) {
		return types.Metrics{"ok": true}, nil
	})
}

func boomUnit(t *testing.T, name string) unit.Runner {
	return runner(t, name, func(context.Context, types.Context) (types.Metrics, error) {
		return nil, errors.New("boom")
	})
}

func echoUnit(t *testing.T) unit.Runner {
	return runner(t, "Echo", func(_ context.Context, tc types.Context) (types.Metrics, error) {
		return types.Metrics{"seen": tc["t"]}, nil
	})
}

func upperAdv(t *testing.T) unit.Generator {
	return generator(t, "Adv", func(_ context.Context, seed types.Context) (types.Context, error) {
		s, _ := seed.String("t")
		return seed.With("t", strings.ToUpper(s)), nil
	})
}

func newEngine(t *testing.T, units ...unit.Unit) *Engine {
	t.Helper()
	reg := registry.New()
	reg.MustRegister(units...)
	return New(reg)
}

func diffResults(t *testing.T, want, got types.Results) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

// =============================================================================
// STANDARD EXPERIMENTS
// =============================================================================

func TestRunExperiment_ContainsFailures(t *testing.T) {
	e := newEngine(t, okUnit(t, "A"), boomUnit(t, "B"))

	got, err := e.RunExperiment(context.Background(), experiment.Experiment{
		Name:     "ab",
		Variants: []string{"A", "B"},
		Context:  types.Context{},
	})
	require.NoError(t, err)
	diffResults(t, types.Results{
		"A": {"ok": true},
		"B": types.ErrorMetrics(errors.New("boom")),
	}, got)
}

func TestRunExperiment_ErrorMetricFromSuccessfulUnit(t *testing.T) {
	lint := runner(t, "Lint", func(context.Context, types.Context) (types.Metrics, error) {
		return types.Metrics{"error": "none found"}, nil
	})
	var (
		mu       sync.Mutex
		outcomes []Outcome
	)
	reg := registry.New()
	reg.MustRegister(lint)
	e := New(reg, WithObserver(ObserverFunc(func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	})))

	got, err := e.RunExperiment(context.Background(), experiment.Experiment{Name: "lint", Variants: []string{"Lint"}})
	require.NoError(t, err)
	assert.Equal(t, types.Metrics{"error": "none found"}, got["Lint"])
	assert.Empty(t, got.Failed())
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Failed())
}

func TestRunExperiment_UnresolvedNameIsContained(t *testing.T) {
	e := newEngine(t, okUnit(t, "A"))

	got, err := e.RunExperiment(context.Background(), experiment.Experiment{
		Name:     "missing",
		Variants: []string{"A", "ghost"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.Metrics{"ok": true}, got["A"])

	msg, failed := got["ghost"].Err()
	require.True(t, failed)
	assert.Contains(t, msg, "ghost")
	assert.Contains(t, msg, "not found")
}

func TestRunExperiment_GeneratorInRunnerSlotIsContained(t *testing.T) {
	e := newEngine(t, okUnit(t, "A"), upperAdv(t))

	got, err := e.RunExperiment(context.Background(), experiment.Experiment{
		Name:     "misuse",
		Variants: []string{"A", "Adv"},
		Context:  types.Context{"t": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.Metrics{"ok": true}, got["A"])
	msg, failed := got["Adv"].Err()
	require.True(t, failed)
	assert.Contains(t, msg, "GenerateContext")
}

func TestRunExperiment_PanicIsContained(t *testing.T) {
	panicky := runner(t, "P", func(context.Context, types.Context) (types.Metrics, error) {
		panic("kaboom")
	})
	e := newEngine(t, okUnit(t, "A"), panicky)

	got, err := e.RunExperiment(context.Background(), experiment.Experiment{
		Name:     "panic",
		Variants: []string{"P", "A"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.Metrics{"ok": true}, got["A"])
	msg, failed := got["P"].Err()
	require.True(t, failed)
	assert.Contains(t, msg, "kaboom")
}

func TestRunExperiment_KeysMatchRequest(t *testing.T) {
	e := newEngine(t, okUnit(t, "A"), boomUnit(t, "B"), okUnit(t, "C"))

	tests := []struct {
		name     string
		variants []string
		want     []string
	}{
		{"all", []string{"C", "A", "B"}, []string{"A", "B", "C"}},
		{"with unknown", []string{"A", "nope"}, []string{"A", "nope"}},
		{"duplicates run once", []string{"A", "A", "B"}, []string{"A", "B"}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.RunExperiment(context.Background(), experiment.Experiment{Name: tt.name, Variants: tt.variants})
			require.NoError(t, err)
			require.NotNil(t, got)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got.Names())
		})
	}
}

func TestRunExperiment_DuplicateRunsOnce(t *testing.T) {
	var calls atomic.Int32
	counted := runner(t, "A", func(context.Context, types.Context) (types.Metrics, error) {
		calls.Add(1)
		return types.Metrics{}, nil
	})
	e := newEngine(t, counted)

	_, err := e.RunExperiment(context.Background(), experiment.Experiment{Name: "dup", Variants: []string{"A", "A", "A"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunExperiment_NilMetricsBecomesEmpty(t *testing.T) {
	silent := runner(t, "S", func(context.Context, types.Context) (types.Metrics, error) {
		return nil, nil
	})
	e := newEngine(t, silent)

	got, err := e.RunExperiment(context.Background(), experiment.Experiment{Name: "nil", Variants: []string{"S"}})
	require.NoError(t, err)
	assert.Equal(t, types.Metrics{}, got["S"])
}

func TestRunExperiment_SharedContextIsSameValue(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	reader := func(name string) unit.Runner {
		return runner(t, name, func(_ context.Context, tc types.Context) (types.Metrics, error) {
			mu.Lock()
			seen = append(seen, fmt.Sprint(tc["shared"]))
			mu.Unlock()
			return types.Metrics{"keys": len(tc)}, nil
		})
	}
	e := newEngine(t, reader("r1"), reader("r2"), reader("r3"))

	tc := types.Context{"shared": "v"}
	got, err := e.RunExperiment(context.Background(), experiment.Experiment{
		Name: "shared", Variants: []string{"r1", "r2", "r3"}, Context: tc,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"v", "v", "v"}, seen)
	for _, name := range []string{"r1", "r2", "r3"} {
		assert.Equal(t, types.Metrics{"keys": 1}, got[name])
	}
	assert.Equal(t, types.Context{"shared": "v"}, tc)
}

func TestRunExperiment_Idempotent(t *testing.T) {
	e := newEngine(t, okUnit(t, "A"), boomUnit(t, "B"))
	exp := experiment.Experiment{Name: "twice", Variants: []string{"A", "B", "ghost"}}

	first, err := e.RunExperiment(context.Background(), exp)
	require.NoError(t, err)
	second, err := e.RunExperiment(context.Background(), exp)
	require.NoError(t, err)

	diffResults(t, first, second)
	assert.Equal(t, first.Failed(), second.Failed())
}

func TestRunExperiment_WaitsForSlowUnits(t *testing.T) {
	slow := runner(t, "slow", func(context.Context, types.Context) (types.Metrics, error) {
		time.Sleep(50 * time.Millisecond)
		return types.Metrics{"done": true}, nil
	})
	e := newEngine(t, slow, boomUnit(t, "fast-fail"))

	got, err := e.RunExperiment(context.Background(), experiment.Experiment{Name: "wait", Variants: []string{"fast-fail", "slow"}})
	require.NoError(t, err)
	assert.Equal(t, types.Metrics{"done": true}, got["slow"])
}

func TestRunExperiment_RunsConcurrently(t *testing.T) {
	const n = 4
	var barrier sync.WaitGroup
	barrier.Add(n)
	var units []unit.Unit
	for i := 0; i < n; i++ {
		units = append(units, runner(t, fmt.Sprintf("u%d", i), func(ctx context.Context, _ types.Context) (types.Metrics, error) {
			barrier.Done()
			done := make(chan struct{})
			go func() { barrier.Wait(); close(done) }()
			select {
			case <-done:
				return types.Metrics{"met": true}, nil
			case <-time.After(5 * time.Second):
				return nil, errors.New("units did not overlap")
			}
		}))
	}
	e := newEngine(t, units...)

	got, err := e.RunExperiment(context.Background(), experiment.Experiment{Name: "overlap", Variants: []string{"u0", "u1", "u2", "u3"}})
	require.NoError(t, err)
	assert.Empty(t, got.Failed())
}

func TestRunExperiment_ConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	var units []unit.Unit
	var names []string
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("u%d", i)
		names = append(names, name)
		units = append(units, runner(t, name, func(context.Context, types.Context) (types.Metrics, error) {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return types.Metrics{}, nil
		}))
	}
	reg := registry.New()
	reg.MustRegister(units...)
	e := New(reg, WithConcurrency(2))

	got, err := e.RunExperiment(context.Background(), experiment.Experiment{Name: "limited", Variants: names})
	require.NoError(t, err)
	assert.Len(t, got, 8)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunExperiment_UnitTimeout(t *testing.T) {
	waiter := runner(t, "waiter", func(ctx context.Context, _ types.Context) (types.Metrics, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return types.Metrics{"waited": true}, nil
		}
	})
	reg := registry.New()
	reg.MustRegister(waiter, okUnit(t, "A"))
	e := New(reg, WithUnitTimeout(20*time.Millisecond))

	got, err := e.RunExperiment(context.Background(), experiment.Experiment{Name: "timeout", Variants: []string{"waiter", "A"}})
	require.NoError(t, err)
	msg, failed := got["waiter"].Err()
	require.True(t, failed)
	assert.Contains(t, msg, "deadline exceeded")
	assert.Equal(t, types.Metrics{"ok": true}, got["A"])
}

func TestRunExperiment_NoRegistry(t *testing.T) {
	_, err := New(nil).RunExperiment(context.Background(), experiment.Experiment{Name: "x"})
	assert.ErrorIs(t, err, ErrNoRegistry)
}

func TestObserver_SeesEveryUnit(t *testing.T) {
	var (
		mu       sync.Mutex
		outcomes = map[string]Outcome{}
	)
	obs := ObserverFunc(func(o Outcome) {
		mu.Lock()
		outcomes[o.Unit] = o
		mu.Unlock()
	})
	reg := registry.New()
	reg.MustRegister(okUnit(t, "A"), boomUnit(t, "B"))
	e := New(reg, WithObserver(obs))

	_, err := e.RunExperiment(context.Background(), experiment.Experiment{Name: "obs", Variants: []string{"A", "B"}})
	require.NoError(t, err)

	require.Len(t, outcomes, 2)
	assert.False(t, outcomes["A"].Failed())
	assert.True(t, outcomes["B"].Failed())
	assert.EqualError(t, outcomes["B"].Err, "boom")
	assert.Equal(t, "obs", outcomes["A"].Experiment)
	assert.NotEmpty(t, outcomes["A"].RunID)
	assert.Equal(t, outcomes["A"].RunID, outcomes["B"].RunID)
}

func TestLogger_RecordsStagesAndFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reg := registry.New()
	reg.MustRegister(okUnit(t, "A"), boomUnit(t, "B"))
	e := New(reg, WithLogger(zap.New(core)))

	_, err := e.RunExperiment(context.Background(), experiment.Experiment{Name: "logged", Variants: []string{"A", "B"}})
	require.NoError(t, err)

	var stages []string
	for _, entry := range logs.FilterMessage("Experiment stage").All() {
		stages = append(stages, entry.ContextMap()["stage"].(string))
	}
	assert.Equal(t, []string{"ready", "dispatching", "collecting", "done"}, stages)
	assert.Equal(t, 1, logs.FilterMessage("Unit failed").Len())
}

// =============================================================================
// ADVERSARIAL EXPERIMENTS
// =============================================================================

func TestRunAdversarial_TargetsSeeGeneratedContext(t *testing.T) {
	e := newEngine(t, upperAdv(t), echoUnit(t))

	got, err := e.RunAdversarial(context.Background(), experiment.AdversarialExperiment{
		Name:               "shout",
		AdversarialVariant: "Adv",
		TargetVariants:     []string{"Echo"},
		SeedContext:        types.Context{"t": "hello"},
	})
	require.NoError(t, err)
	diffResults(t, types.Results{"Echo": {"seen": "HELLO"}}, got)
}

func TestRunAdversarial_GeneratedContextPreservesSeed(t *testing.T) {
	overwriter := generator(t, "Over", func(_ context.Context, seed types.Context) (types.Context, error) {
		return seed.With("x", "new"), nil
	})
	dump := runner(t, "Dump", func(_ context.Context, tc types.Context) (types.Metrics, error) {
		return types.Metrics(tc.Clone()), nil
	})
	e := newEngine(t, overwriter, dump)

	seed := types.Context{"a": 1}
	got, err := e.RunAdversarial(context.Background(), experiment.AdversarialExperiment{
		Name: "keep", AdversarialVariant: "Over", TargetVariants: []string{"Dump"}, SeedContext: seed,
	})
	require.NoError(t, err)
	assert.Equal(t, types.Metrics{"a": 1, "x": "new"}, got["Dump"])
	assert.Equal(t, types.Context{"a": 1}, seed)
}

func TestRunAdversarial_SeedIsNotMutated(t *testing.T) {
	mutator := generator(t, "Mut", func(_ context.Context, seed types.Context) (types.Context, error) {
		seed["t"] = "clobbered"
		return seed, nil
	})
	e := newEngine(t, mutator, echoUnit(t))

	seed := types.Context{"t": "orig"}
	got, err := e.RunAdversarial(context.Background(), experiment.AdversarialExperiment{
		Name: "mut", AdversarialVariant: "Mut", TargetVariants: []string{"Echo"}, SeedContext: seed,
	})
	require.NoError(t, err)
	assert.Equal(t, types.Metrics{"seen": "clobbered"}, got["Echo"])
	assert.Equal(t, "orig", seed["t"])
}

func TestRunAdversarial_NilSeed(t *testing.T) {
	var gotSeed types.Context = types.Context{"sentinel": true}
	gen := generator(t, "G", func(_ context.Context, seed types.Context) (types.Context, error) {
		gotSeed = seed
		return types.Context{"t": "made"}, nil
	})
	e := newEngine(t, gen, echoUnit(t))

	got, err := e.RunAdversarial(context.Background(), experiment.AdversarialExperiment{
		Name: "noseed", AdversarialVariant: "G", TargetVariants: []string{"Echo"},
	})
	require.NoError(t, err)
	assert.Nil(t, gotSeed)
	assert.Equal(t, types.Metrics{"seen": "made"}, got["Echo"])
}

func TestRunAdversarial_TargetFailuresContained(t *testing.T) {
	e := newEngine(t, upperAdv(t), echoUnit(t), boomUnit(t, "B"))

	got, err := e.RunAdversarial(context.Background(), experiment.AdversarialExperiment{
		Name:               "mixed",
		AdversarialVariant: "Adv",
		TargetVariants:     []string{"Echo", "B", "ghost"},
		SeedContext:        types.Context{"t": "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "Echo", "ghost"}, got.Names())
	assert.Equal(t, types.Metrics{"seen": "HI"}, got["Echo"])
	assert.Equal(t, types.ErrorMetrics(errors.New("boom")), got["B"])
	_, ghostFailed := got["ghost"].Err()
	assert.True(t, ghostFailed)
	_, advPresent := got["Adv"]
	assert.False(t, advPresent, "adversarial unit must not appear in results")
}

func TestRunAdversarial_FatalErrors(t *testing.T) {
	failing := generator(t, "Fail", func(context.Context, types.Context) (types.Context, error) {
		return nil, errors.New("no context today")
	})
	panicking := generator(t, "Panic", func(context.Context, types.Context) (types.Context, error) {
		panic("generator exploded")
	})
	e := newEngine(t, okUnit(t, "Plain"), failing, panicking, echoUnit(t))

	tests := []struct {
		name      string
		adversary string
		is        error
		contains  string
	}{
		{"unregistered adversary", "ghost", registry.ErrNotFound, "ghost"},
		{"plain unit as adversary", "Plain", ErrTypeMismatch, "runner"},
		{"generation error", "Fail", ErrGeneration, "no context today"},
		{"generation panic", "Panic", ErrUnitPanic, "generator exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.RunAdversarial(context.Background(), experiment.AdversarialExperiment{
				Name:               tt.name,
				AdversarialVariant: tt.adversary,
				TargetVariants:     []string{"Echo"},
				SeedContext:        types.Context{"t": "x"},
			})
			assert.Nil(t, got)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}

	t.Run("type mismatch detail", func(t *testing.T) {
		_, err := e.RunAdversarial(context.Background(), experiment.AdversarialExperiment{
			Name: "detail", AdversarialVariant: "Plain", TargetVariants: []string{"Echo"},
		})
		var tm *TypeMismatchError
		require.True(t, errors.As(err, &tm))
		assert.Equal(t, unit.KindGenerator, tm.Want)
		assert.Equal(t, unit.KindRunner, tm.Got)
	})
}

func TestRunAdversarial_WarnsOnDroppedSeedKeys(t *testing.T) {
	dropper := generator(t, "Drop", func(context.Context, types.Context) (types.Context, error) {
		return types.Context{"t": "only"}, nil
	})
	core, logs := observer.New(zapcore.WarnLevel)
	reg := registry.New()
	reg.MustRegister(dropper, echoUnit(t))
	e := New(reg, WithLogger(zap.New(core)))

	got, err := e.RunAdversarial(context.Background(), experiment.AdversarialExperiment{
		Name: "drop", AdversarialVariant: "Drop", TargetVariants: []string{"Echo"},
		SeedContext: types.Context{"t": "x", "lost": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, types.Metrics{"seen": "only"}, got["Echo"])
	require.Equal(t, 1, logs.FilterMessage("Generated context dropped seed keys").Len())
}

// =============================================================================
// DESCRIPTOR DISPATCH
// =============================================================================

func TestRun_DispatchesOnDescriptorShape(t *testing.T) {
	e := newEngine(t, upperAdv(t), echoUnit(t))

	standard := &experiment.Descriptor{Name: "std", Variants: []string{"Echo"}, Context: map[string]any{"t": "plain"}}
	got, err := e.Run(context.Background(), standard)
	require.NoError(t, err)
	assert.Equal(t, types.Metrics{"seen": "plain"}, got["Echo"])

	adversarial := &experiment.Descriptor{
		Name: "adv", AdversarialVariant: "Adv", TargetVariants: []string{"Echo"},
		SeedContext: map[string]any{"t": "plain"},
	}
	got, err = e.Run(context.Background(), adversarial)
	require.NoError(t, err)
	assert.Equal(t, types.Metrics{"seen": "PLAIN"}, got["Echo"])
}

func TestEngines_AreIsolated(t *testing.T) {
	t.Parallel()
	for i := 0; i < 4; i++ {
		i := i
		t.Run(fmt.Sprintf("engine-%d", i), func(t *testing.T) {
			t.Parallel()
			name := fmt.Sprintf("only-%d", i)
			e := newEngine(t, okUnit(t, name))
			got, err := e.RunExperiment(context.Background(), experiment.Experiment{Name: "iso", Variants: []string{name, "only-99"}})
			require.NoError(t, err)
			assert.Equal(t, types.Metrics{"ok": true}, got[name])
			_, failed := got["only-99"].Err()
			assert.True(t, failed)
		})
	}
}
