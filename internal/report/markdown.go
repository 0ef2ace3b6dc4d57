package report

import (
	"fmt"
	"io"
	"strings"

	"agentarena/internal/types"

	"github.com/charmbracelet/glamour"
)

// MarkdownReporter writes a "# experiment" document with one "## unit"
// section per unit and "- **key**: value" bullets. Failed units get a
// single "- Error: message" bullet.
type MarkdownReporter struct {
	Pretty bool
	Width  int
}

func (r *MarkdownReporter) Report(w io.Writer, experiment string, results types.Results) error {
	md := Markdown(experiment, results)
	if !r.Pretty {
		_, err := io.WriteString(w, md)
		return err
	}

	width := r.Width
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

// Markdown builds the raw markdown document for results.
func Markdown(experiment string, results types.Results) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", experiment)
	if len(results) == 0 {
		b.WriteString("\nNo units were run.\n")
		return b.String()
	}
	for _, name := range results.Names() {
		fmt.Fprintf(&b, "\n## %s\n\n", name)
		m := results[name]
		if msg, failed := m.Err(); failed {
			fmt.Fprintf(&b, "- Error: %s\n", msg)
			continue
		}
		if len(m) == 0 {
			b.WriteString("- (no metrics)\n")
			continue
		}
		for _, key := range m.Keys() {
			fmt.Fprintf(&b, "- **%s**: %s\n", key, formatValue(m[key]))
		}
	}
	return b.String()
}
