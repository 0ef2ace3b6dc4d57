package main

import (
	"errors"
	"fmt"
	"os"

	"agentarena/internal/config"
	"agentarena/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Exit codes.
const (
	exitFatal             = 1
	exitContainedFailures = 2
)

// exitError carries a non-default process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFatal
}

// app is the state shared by every subcommand once PersistentPreRunE ran.
type app struct {
	// Global flags
	verbose    bool
	configPath string

	cfg  *config.Config
	logs *logging.Set
}

func newRootCmd() *cobra.Command {
	a := &app{logs: logging.Nop(), cfg: config.DefaultConfig()}

	root := &cobra.Command{
		Use:   "arena",
		Short: "agentarena - run interchangeable agent units against shared task contexts",
		Long: `agentarena runs experiments over a registry of units.

A standard experiment runs every listed unit against one shared context.
An adversarial experiment first asks a generator unit to build the context,
then runs every target against it. A failing unit never aborts its siblings:
its slot in the results holds an {error: message} entry instead.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.logs.Sync()
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default .arena/config.yaml in the workspace root)")

	root.AddCommand(
		newRunCmd(a),
		newValidateCmd(a),
		newUnitsCmd(a),
		newInitCmd(a),
	)
	return root
}

// setup loads config and builds the logger set.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	path := a.configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logs, err := logging.New(cfg.Logging.Options(a.verbose))
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logs = logs
	a.logs.Get(logging.CategoryBoot).Debug("Configuration loaded",
		zap.String("path", path),
		zap.Int("concurrency", cfg.Engine.Concurrency),
		zap.Duration("unit_timeout", cfg.GetUnitTimeout()))
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
