package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"agentarena/internal/engine"
	"agentarena/internal/experiment"
	"agentarena/internal/logging"
	"agentarena/internal/registry"
	"agentarena/internal/report"
	"agentarena/internal/types"
	"agentarena/internal/units"
	"agentarena/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOptions struct {
	format      string
	out         string
	concurrency int
	unitTimeout time.Duration
	watch       bool
	failOnError bool
	progress    bool
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <descriptor>",
		Short: "Run an experiment descriptor and report per-unit results",
		Long: `Loads a YAML or JSON experiment descriptor, registers the built-in units
plus any scripts it declares, runs the experiment and prints a report.

Exit codes:
  0  experiment completed (contained unit failures included)
  1  fatal error: bad descriptor, unknown or failing adversarial unit
  2  --fail-on-error was set and at least one unit failed

Example:
  arena run experiments/shout.yaml --format markdown`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.resolveRunOptions(cmd, opts)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if opts.watch {
				return a.watchAndRun(ctx, cmd, args[0], opts)
			}
			return a.runOnce(ctx, cmd, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.format, "format", "f", "", "Report format: "+strings.Join(report.Formats(), ", ")+" (default from config)")
	f.StringVarP(&opts.out, "out", "o", "", "Write the report to this file instead of stdout")
	f.IntVar(&opts.concurrency, "concurrency", 0, "Maximum units running at once, 0 for unbounded (default from config)")
	f.DurationVar(&opts.unitTimeout, "unit-timeout", 0, "Deadline handed to each unit, 0 for none (default from config)")
	f.BoolVarP(&opts.watch, "watch", "w", false, "Re-run whenever the descriptor or its scripts change")
	f.BoolVar(&opts.failOnError, "fail-on-error", false, "Exit with status 2 when any unit failed")
	f.BoolVar(&opts.progress, "progress", false, "Print each unit's outcome to stderr as it settles")
	return cmd
}

// resolveRunOptions fills every flag the user did not set from config.
func (a *app) resolveRunOptions(cmd *cobra.Command, opts *runOptions) {
	flags := cmd.Flags()
	if !flags.Changed("format") {
		opts.format = a.cfg.Report.Format
	}
	if !flags.Changed("concurrency") {
		opts.concurrency = a.cfg.Engine.Concurrency
	}
	if !flags.Changed("unit-timeout") {
		opts.unitTimeout = a.cfg.GetUnitTimeout()
	}
}

// prepare loads and validates the descriptor and builds its registry.
func (a *app) prepare(path string) (*experiment.Descriptor, *registry.Registry, error) {
	d, err := experiment.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}

	reg := registry.New()
	if err := units.RegisterBuiltins(reg, a.logs.Get(logging.CategoryUnits)); err != nil {
		return nil, nil, err
	}
	scriptOpts := units.ScriptOptions{
		AllowedPackages: a.cfg.Scripts.AllowedPackages,
		Logger:          a.logs.Get(logging.CategoryScript),
	}
	if err := units.RegisterScripts(reg, d, scriptOpts); err != nil {
		return nil, nil, err
	}
	a.logs.Get(logging.CategoryRegistry).Debug("Registry ready", zap.Strings("units", reg.Names()))
	return d, reg, nil
}

func (a *app) newEngine(reg *registry.Registry, opts *runOptions, progress io.Writer) *engine.Engine {
	engineOpts := []engine.Option{
		engine.WithLogger(a.logs.Get(logging.CategoryEngine)),
		engine.WithConcurrency(opts.concurrency),
		engine.WithUnitTimeout(opts.unitTimeout),
	}
	if opts.progress {
		engineOpts = append(engineOpts, engine.WithObserver(newProgressPrinter(progress)))
	}
	return engine.New(reg, engineOpts...)
}

func (a *app) runOnce(ctx context.Context, cmd *cobra.Command, path string, opts *runOptions) error {
	d, reg, err := a.prepare(path)
	if err != nil {
		return err
	}

	eng := a.newEngine(reg, opts, cmd.ErrOrStderr())
	results, err := eng.Run(ctx, d)
	if err != nil {
		return fmt.Errorf("experiment %q failed: %w", d.Name, err)
	}

	if err := a.emit(cmd.OutOrStdout(), d.Name, results, opts); err != nil {
		return err
	}

	if failed := results.Failed(); opts.failOnError && len(failed) > 0 {
		return &exitError{
			code: exitContainedFailures,
			err:  fmt.Errorf("%d unit(s) failed: %s", len(failed), strings.Join(failed, ", ")),
		}
	}
	return nil
}

// emit renders results to w, or to opts.out when set. File output is never
// ANSI-styled.
func (a *app) emit(w io.Writer, name string, results types.Results, opts *runOptions) error {
	reporter, err := report.New(opts.format, report.Options{Pretty: a.cfg.Report.Pretty && opts.out == ""})
	if err != nil {
		return err
	}
	if opts.out == "" {
		return reporter.Report(w, name, results)
	}
	if err := report.WriteFile(opts.out, reporter, name, results); err != nil {
		return err
	}
	a.logs.Get(logging.CategoryReport).Info("Report written", zap.String("path", opts.out), zap.String("format", opts.format))
	return nil
}

// watchAndRun runs once, then again after every change to the descriptor or
// a script file it references, until ctx is cancelled. Run errors are
// printed, not returned, so a broken edit does not end the session.
func (a *app) watchAndRun(ctx context.Context, cmd *cobra.Command, path string, opts *runOptions) error {
	stderr := cmd.ErrOrStderr()
	rerun := func(ctx context.Context, _ []string) {
		if err := a.runOnce(ctx, cmd, path, opts); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
	}

	rerun(ctx, nil)

	var w *watch.Watcher
	refresh := func(ctx context.Context, changed []string) {
		rerun(ctx, changed)
		// The edit may have added or moved script files.
		if err := w.SetFiles(watchedFiles(path)); err != nil {
			a.logs.Get(logging.CategoryWatch).Warn("Failed to refresh watched files", zap.Error(err))
		}
	}
	w, err := watch.New(watchedFiles(path), refresh, watch.WithLogger(a.logs.Get(logging.CategoryWatch)))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	defer w.Stop()

	fmt.Fprintf(stderr, "Watching %s for changes (Ctrl+C to stop)\n", path)
	<-ctx.Done()
	return nil
}

// watchedFiles returns the descriptor plus every script file it currently
// references. A descriptor that does not parse yields just itself.
func watchedFiles(path string) []string {
	files := []string{path}
	if d, err := experiment.Load(path); err == nil {
		for _, s := range d.Scripts {
			if p := d.ScriptPath(s); p != "" {
				files = append(files, p)
			}
		}
	}
	return files
}

// progressPrinter is an engine observer that prints one line per unit.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) UnitSettled(o engine.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if o.Failed() {
		fmt.Fprintf(p.w, "  ✗ %s (%s): %v\n", o.Unit, o.Duration.Round(time.Millisecond), o.Err)
		return
	}
	fmt.Fprintf(p.w, "  ✓ %s (%s)\n", o.Unit, o.Duration.Round(time.Millisecond))
}
