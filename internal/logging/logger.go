// Package logging builds the zap loggers used across agentarena.
//
// Loggers are never global: the CLI builds a Set once from config and hands
// category loggers to the packages that need them. Library packages take a
// *zap.Logger and default to zap.NewNop() when none is injected.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config loading
	CategoryEngine   Category = "engine"   // Experiment dispatch and collection
	CategoryRegistry Category = "registry" // Unit registration
	CategoryUnits    Category = "units"    // Built-in unit activity
	CategoryScript   Category = "script"   // Interpreted script units
	CategoryReport   Category = "report"   // Report rendering and writing
	CategoryWatch    Category = "watch"    // Descriptor file watching
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level       string          // debug, info, warn, error
	Format      string          // json, console
	Categories  map[string]bool // category -> enabled; absent means enabled
	Verbose     bool            // forces debug level
	OutputPaths []string        // defaults to stderr
}

// Set is a root logger plus per-category enablement.
type Set struct {
	root     *zap.Logger
	disabled map[Category]bool

	mu     sync.Mutex
	cached map[Category]*zap.Logger
}

// New builds a Set from opts.
func New(opts Options) (*Set, error) {
	root, err := Build(opts)
	if err != nil {
		return nil, err
	}
	return NewSet(root, opts.Categories), nil
}

// NewSet wraps an existing root logger.
func NewSet(root *zap.Logger, categories map[string]bool) *Set {
	if root == nil {
		root = zap.NewNop()
	}
	disabled := make(map[Category]bool)
	for cat, enabled := range categories {
		if !enabled {
			disabled[Category(cat)] = true
		}
	}
	return &Set{root: root, disabled: disabled, cached: make(map[Category]*zap.Logger)}
}

// Nop returns a Set that discards everything.
func Nop() *Set {
	return NewSet(zap.NewNop(), nil)
}

// Build constructs the root zap logger the way the CLI always has:
// production config, level from opts, debug when verbose.
func Build(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(opts.Format) {
	case "", "console", "text":
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: json, console)", opts.Format)
	}
	cfg.Sampling = nil

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// ParseLevel maps a config level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// Root returns the uncategorised logger.
func (s *Set) Root() *zap.Logger { return s.root }

// Get returns the named logger for category, or a no-op logger when the
// category is disabled.
func (s *Set) Get(category Category) *zap.Logger {
	if s.disabled[category] {
		return zap.NewNop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.cached[category]; ok {
		return l
	}
	l := s.root.Named(string(category))
	s.cached[category] = l
	return l
}

// Sync flushes the root logger. Errors from syncing stderr on some
// platforms are expected and ignored.
func (s *Set) Sync() {
	_ = s.root.Sync()
}

// =============================================================================
// TIMERS
// =============================================================================

// Timer measures one operation and logs its duration when stopped.
type Timer struct {
	logger *zap.Logger
	op     string
	start  time.Time
}

// StartTimer begins timing an operation
func StartTimer(logger *zap.Logger, operation string) *Timer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Timer{logger: logger, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Debug("operation completed", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		t.logger.Warn("slow operation",
			zap.String("op", t.op),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", threshold))
	} else {
		t.logger.Debug("operation completed", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	}
	return elapsed
}
