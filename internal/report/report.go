// Package report renders experiment Results for people and machines.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"agentarena/internal/types"
)

// Formats understood by New.
const (
	FormatTable    = "table"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// ErrUnknownFormat is returned by New for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown report format")

// Reporter writes one experiment's Results to w.
type Reporter interface {
	Report(w io.Writer, experiment string, results types.Results) error
}

// Options tune the human-readable reporters.
type Options struct {
	// Pretty renders markdown through glamour instead of emitting raw text.
	Pretty bool
	// Width is the word-wrap width for pretty output; 0 means 80.
	Width int
}

// New returns the reporter for format.
func New(format string, opts Options) (Reporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatTable, "":
		return &TableReporter{}, nil
	case FormatMarkdown, "md":
		return &MarkdownReporter{Pretty: opts.Pretty, Width: opts.Width}, nil
	case FormatJSON:
		return &JSONReporter{Indent: "  "}, nil
	default:
		return nil, fmt.Errorf("%w %q (valid: %s, %s, %s)", ErrUnknownFormat, format, FormatTable, FormatMarkdown, FormatJSON)
	}
}

// Formats lists the supported format names.
func Formats() []string {
	return []string{FormatTable, FormatMarkdown, FormatJSON}
}

// WriteFile renders results with r into path, creating parent directories.
func WriteFile(path string, r Reporter, experiment string, results types.Results) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := r.Report(f, experiment, results); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

// JSONReporter writes {"experiment": ..., "results": {...}}.
type JSONReporter struct {
	Indent string
}

type jsonReport struct {
	Experiment string        `json:"experiment"`
	Results    types.Results `json:"results"`
	Failed     []string      `json:"failed,omitempty"`
}

func (r *JSONReporter) Report(w io.Writer, experiment string, results types.Results) error {
	enc := json.NewEncoder(w)
	if r.Indent != "" {
		enc.SetIndent("", r.Indent)
	}
	if results == nil {
		results = types.Results{}
	}
	if err := enc.Encode(jsonReport{Experiment: experiment, Results: results, Failed: results.Failed()}); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

// formatValue renders a metric value for the human-readable formats.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "n/a"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', 6, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', 6, 32)
	case []string:
		return strings.Join(x, ", ")
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + formatValue(x[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return types.ExtractString(x)
	}
}
