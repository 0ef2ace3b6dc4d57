// Package units provides the built-in experiment units.
//
// Runners:
//   - echo: reports what it saw under "t" plus the context keys
//   - text-stats: character, word and line counts for "text"
//   - pid-navigator: PID-controlled point mass driven toward a target
//   - trading-kpis: KPIs over a per-trade P&L CSV in "dataString"
//   - script units: Go source interpreted at run time (see NewScript)
//
// Generators:
//   - uppercase: uppercases every string value
//   - text-corruptor: deterministically corrupts "text" and "initial_text"
//   - target-perturb: jitters "target_pos"
//
// Every generator returns a copy of its seed with only the documented keys
// overwritten.
package units

import (
	"fmt"

	"agentarena/internal/experiment"
	"agentarena/internal/registry"
	"agentarena/internal/unit"

	"go.uber.org/zap"
)

// Built-in unit names.
const (
	NameEcho          = "echo"
	NameTextStats     = "text-stats"
	NamePIDNavigator  = "pid-navigator"
	NameTradingKPIs   = "trading-kpis"
	NameUppercase     = "uppercase"
	NameTextCorruptor = "text-corruptor"
	NameTargetPerturb = "target-perturb"
)

// Builtins returns fresh instances of every built-in unit. logger may be
// nil.
func Builtins(logger *zap.Logger) []unit.Unit {
	if logger == nil {
		logger = zap.NewNop()
	}
	nav := NewPIDNavigator()
	nav.logger = logger
	kpis := NewTradingKPIs()
	kpis.logger = logger
	return []unit.Unit{
		NewEcho(),
		NewTextStats(),
		nav,
		kpis,
		NewUppercase(),
		NewTextCorruptor(),
		NewTargetPerturb(),
	}
}

// RegisterBuiltins registers every built-in unit with reg. The units that
// report progress log to logger.
func RegisterBuiltins(reg *registry.Registry, logger *zap.Logger) error {
	for _, u := range Builtins(logger) {
		if err := reg.Register(u); err != nil {
			return fmt.Errorf("register built-in %q: %w", u.Name(), err)
		}
	}
	return nil
}

// RegisterScripts compiles every script declared by d and registers it under
// its declared name. A compile failure or a name clash aborts registration.
func RegisterScripts(reg *registry.Registry, d *experiment.Descriptor, opts ScriptOptions) error {
	for _, spec := range d.Scripts {
		src, err := d.ScriptSource(spec)
		if err != nil {
			return fmt.Errorf("script %q: %w", spec.Name, err)
		}
		s, err := NewScript(spec.Name, src, opts)
		if err != nil {
			return err
		}
		if err := reg.Register(s); err != nil {
			return fmt.Errorf("register script %q: %w", spec.Name, err)
		}
		logger := opts.Logger
		if logger == nil {
			logger = zap.NewNop()
		}
		logger.Debug("Registered script unit", zap.String("unit", spec.Name))
	}
	return nil
}
