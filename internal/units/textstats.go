package units

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"agentarena/internal/types"
	"agentarena/internal/unit"
)

// TextStats counts characters, words and lines of the "text" key.
type TextStats struct {
	unit.Base
}

// NewTextStats creates the text-stats runner.
func NewTextStats() *TextStats {
	return &TextStats{Base: unit.MustBase(NameTextStats)}
}

func (s *TextStats) Run(_ context.Context, tc types.Context) (types.Metrics, error) {
	raw, present := tc["text"]
	if !present {
		return nil, &MissingInputError{Unit: s.Name(), Key: "text"}
	}
	text, ok := raw.(string)
	if !ok {
		return nil, &InvalidInputError{Unit: s.Name(), Key: "text", Reason: "must be a string"}
	}

	lines := 0
	if text != "" {
		lines = strings.Count(text, "\n") + 1
	}

	var letters, upper int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	ratio := 0.0
	if letters > 0 {
		ratio = float64(upper) / float64(letters)
	}

	return types.Metrics{
		"chars":           utf8.RuneCountInString(text),
		"words":           len(strings.Fields(text)),
		"lines":           lines,
		"uppercase_ratio": ratio,
	}, nil
}
