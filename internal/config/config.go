package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"agentarena/internal/report"

	"gopkg.in/yaml.v3"
)

const (
	// DirName is the per-workspace configuration directory.
	DirName = ".arena"
	// FileName is the config file inside DirName.
	FileName = "config.yaml"

	defaultUnitTimeout = 0
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all agentarena configuration.
type Config struct {
	// Engine settings
	Engine EngineConfig `yaml:"engine"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Report rendering
	Report ReportConfig `yaml:"report"`

	// Script unit sandbox
	Scripts ScriptsConfig `yaml:"scripts"`

	// envProblems records environment overrides that could not be applied.
	envProblems []string
}

// EngineConfig configures experiment execution.
type EngineConfig struct {
	// Maximum units running at once; 0 means unbounded.
	Concurrency int `yaml:"concurrency"`

	// Per-unit deadline as a Go duration ("30s"); empty or "0" means none.
	UnitTimeout string `yaml:"unit_timeout"`
}

// ReportConfig configures result rendering.
type ReportConfig struct {
	Format string `yaml:"format"` // table, markdown, json
	Pretty bool   `yaml:"pretty"` // render markdown through glamour
}

// ScriptsConfig configures interpreted script units.
type ScriptsConfig struct {
	// Stdlib packages scripts may import; empty means the built-in whitelist.
	AllowedPackages []string `yaml:"allowed_packages"`
}

// ValidReportFormats lists the accepted report.format values.
var ValidReportFormats = report.Formats()

// ValidLogFormats lists the accepted logging.format values.
var ValidLogFormats = []string{"console", "text", "json"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Concurrency: 0,
			UnitTimeout: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Report: ReportConfig{
			Format: "table",
			Pretty: true,
		},
	}
}

// FindWorkspaceRoot walks up from the working directory to the first
// directory holding .arena or go.mod. It falls back to the working
// directory itself.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, DirName)); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}

// DefaultConfigPath returns .arena/config.yaml under the workspace root.
func DefaultConfigPath() string {
	root, err := FindWorkspaceRoot()
	if err != nil {
		return filepath.Join(DirName, FileName)
	}
	return filepath.Join(root, DirName, FileName)
}

// Load reads configuration from path. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies ARENA_* environment variables on top of the
// file values. Unparsable values are kept out of the config and reported
// by Validate.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("ARENA_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("ARENA_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if raw := os.Getenv("ARENA_CONCURRENCY"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.envProblems = append(c.envProblems, fmt.Sprintf("ARENA_CONCURRENCY=%q is not an integer", raw))
		} else {
			c.Engine.Concurrency = n
		}
	}
	if timeout := os.Getenv("ARENA_UNIT_TIMEOUT"); timeout != "" {
		c.Engine.UnitTimeout = timeout
	}
	if format := os.Getenv("ARENA_REPORT_FORMAT"); format != "" {
		c.Report.Format = format
	}
}

// GetUnitTimeout returns the per-unit deadline, or 0 when unset or
// unparsable.
func (c *Config) GetUnitTimeout() time.Duration {
	if strings.TrimSpace(c.Engine.UnitTimeout) == "" {
		return defaultUnitTimeout
	}
	d, err := time.ParseDuration(c.Engine.UnitTimeout)
	if err != nil || d < 0 {
		return defaultUnitTimeout
	}
	return d
}

// Validate checks the configuration for values the CLI cannot use.
func (c *Config) Validate() error {
	if len(c.envProblems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(c.envProblems, "; "))
	}

	if c.Engine.Concurrency < 0 {
		return fmt.Errorf("%w: engine.concurrency must not be negative, got %d", ErrInvalidConfig, c.Engine.Concurrency)
	}
	if t := strings.TrimSpace(c.Engine.UnitTimeout); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("%w: engine.unit_timeout %q: %v", ErrInvalidConfig, t, err)
		}
		if d < 0 {
			return fmt.Errorf("%w: engine.unit_timeout must not be negative", ErrInvalidConfig)
		}
	}

	if err := c.Logging.validate(); err != nil {
		return err
	}

	if !contains(ValidReportFormats, strings.ToLower(c.Report.Format)) {
		return fmt.Errorf("%w: invalid report format: %s (valid: %v)", ErrInvalidConfig, c.Report.Format, ValidReportFormats)
	}

	for _, pkg := range c.Scripts.AllowedPackages {
		if strings.TrimSpace(pkg) == "" {
			return fmt.Errorf("%w: scripts.allowed_packages contains an empty entry", ErrInvalidConfig)
		}
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
