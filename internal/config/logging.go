package config

import (
	"fmt"
	"strings"

	"agentarena/internal/logging"
)

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty"`           // debug, info, warn, error
	Format     string          `yaml:"format" json:"format,omitempty"`         // json, console
	File       string          `yaml:"file" json:"file,omitempty"`             // optional log file; stderr when empty
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"` // Per-category toggles
}

// Options converts the section into logging.Options. verbose forces debug.
func (c *LoggingConfig) Options(verbose bool) logging.Options {
	opts := logging.Options{
		Level:      c.Level,
		Format:     c.Format,
		Categories: c.Categories,
		Verbose:    verbose,
	}
	if c.File != "" {
		opts.OutputPaths = []string{c.File}
	}
	return opts
}

func (c *LoggingConfig) validate() error {
	if _, err := logging.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalidConfig, err)
	}
	if c.Format != "" && !contains(ValidLogFormats, strings.ToLower(c.Format)) {
		return fmt.Errorf("%w: invalid log format: %s (valid: %v)", ErrInvalidConfig, c.Format, ValidLogFormats)
	}
	return nil
}
