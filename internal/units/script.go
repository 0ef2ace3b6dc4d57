package units

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"agentarena/internal/types"
	"agentarena/internal/unit"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"
)

// DefaultAllowedPackages is the stdlib whitelist for script units. Packages
// that reach the filesystem, network, processes or raw memory (os, os/exec,
// net, net/http, syscall, unsafe) are deliberately absent.
var DefaultAllowedPackages = []string{
	"bytes",
	"encoding/base64",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"path",
	"path/filepath",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
}

// ScriptFunc is the entry point every script must define as main.Run.
type ScriptFunc func(ctx map[string]interface{}) (map[string]interface{}, error)

// ScriptOptions configures script compilation.
type ScriptOptions struct {
	// AllowedPackages overrides DefaultAllowedPackages when non-empty.
	AllowedPackages []string
	Logger          *zap.Logger
}

// Script is a runner whose behaviour is Go source interpreted by yaegi.
// The source must define
//
//	func Run(ctx map[string]interface{}) (map[string]interface{}, error)
//
// in package main ("package main" is added when missing). Scripts are
// compiled once at construction; Run calls the compiled function with a
// private copy of the context.
type Script struct {
	unit.Base
	fn     ScriptFunc
	logger *zap.Logger

	// Interpreted functions share interpreter state, so calls are serialised.
	mu sync.Mutex
}

// NewScript validates imports, interprets src and binds its Run function.
func NewScript(name, src string, opts ScriptOptions) (*Script, error) {
	base, err := unit.NewBase(name)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := opts.AllowedPackages
	if len(allowed) == 0 {
		allowed = DefaultAllowedPackages
	}

	code := wrapScript(src)
	if err := validateImports(code, allowed); err != nil {
		return nil, fmt.Errorf("script %q: %w", name, err)
	}

	start := time.Now()
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("script %q: failed to load stdlib: %w", name, err)
	}
	if _, err := i.Eval(code); err != nil {
		return nil, fmt.Errorf("script %q: evaluation failed: %w", name, err)
	}
	v, err := i.Eval("main.Run")
	if err != nil {
		return nil, fmt.Errorf("script %q: Run function not found: %w", name, err)
	}
	fn, ok := v.Interface().(func(map[string]interface{}) (map[string]interface{}, error))
	if !ok {
		return nil, fmt.Errorf("script %q: Run has incorrect signature (expected: func(map[string]interface{}) (map[string]interface{}, error))", name)
	}
	logger.Debug("Script compiled", zap.String("unit", name), zap.Duration("elapsed", time.Since(start)))

	return &Script{Base: base, fn: fn, logger: logger}, nil
}

// Run calls the script. It returns early with ctx.Err() when ctx is done;
// the interpreted call itself cannot be interrupted and finishes in the
// background.
func (s *Script) Run(ctx context.Context, tc types.Context) (types.Metrics, error) {
	input := map[string]interface{}(tc.Clone())

	type result struct {
		out map[string]interface{}
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("script panicked: %v", p)}
			}
		}()
		s.mu.Lock()
		defer s.mu.Unlock()
		out, err := s.fn(input)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			s.logger.Debug("Script returned error", zap.String("unit", s.Name()), zap.Error(r.err))
			return nil, r.err
		}
		return types.Metrics(r.out), nil
	case <-ctx.Done():
		s.logger.Warn("Script abandoned", zap.String("unit", s.Name()), zap.Error(ctx.Err()))
		return nil, fmt.Errorf("script execution timed out: %w", ctx.Err())
	}
}

func wrapScript(src string) string {
	if strings.Contains(src, "package main") {
		return src
	}
	return "package main\n\n" + src
}

// validateImports rejects any import outside allowed.
func validateImports(code string, allowed []string) error {
	file, err := parser.ParseFile(token.NewFileSet(), "script.go", code, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("parse imports: %w", err)
	}
	ok := make(map[string]bool, len(allowed))
	for _, pkg := range allowed {
		ok[pkg] = true
	}
	var forbidden []string
	for _, imp := range file.Imports {
		pkg, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return fmt.Errorf("parse import %s: %w", imp.Path.Value, err)
		}
		if !ok[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		sorted := append([]string(nil), allowed...)
		sort.Strings(sorted)
		return fmt.Errorf("%w: %v (allowed: %v)", ErrForbiddenImport, forbidden, sorted)
	}
	return nil
}
