package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// CONTEXT VALUE EXTRACTION
// =============================================================================
//
// Context values arrive from descriptor files (YAML/JSON decoding), from
// adversarial generators, or from Go callers, so the same logical value can
// show up as several Go types:
//   - numbers:   int, int64, float64 (YAML ints decode to int, JSON to float64)
//   - sequences: []any from decoders, []float64 / []string from Go callers
//   - booleans:  bool, or the strings "true"/"false"
//
// These helpers normalise those shapes and never panic on a type mismatch.

// ExtractString extracts a string representation of a value.
func ExtractString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}

// ExtractInt64 extracts an int64 value.
// Returns (value, true) on success, (0, false) if the type is incompatible.
func ExtractInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint64:
		return int64(x), true
	case float64:
		return int64(x), true
	case float32:
		return int64(x), true
	default:
		return 0, false
	}
}

// ExtractFloat64 extracts a float64 value.
// Returns (value, true) on success, (0, false) if the type is incompatible.
func ExtractFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

// ExtractBool extracts a boolean value, accepting the strings "true" and
// "false" as well as bool.
func ExtractBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

// ExtractFloatSlice extracts a numeric sequence. Every element must be
// numeric for the extraction to succeed.
func ExtractFloatSlice(v any) ([]float64, bool) {
	switch x := v.(type) {
	case []float64:
		out := make([]float64, len(x))
		copy(out, x)
		return out, true
	case []int:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, true
	case []any:
		out := make([]float64, len(x))
		for i, el := range x {
			f, ok := ExtractFloat64(el)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

// ExtractMap extracts a string-keyed map. yaml.v3 decodes nested mappings
// to map[string]any, which is the common case.
func ExtractMap(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case Context:
		return map[string]any(x), true
	case Metrics:
		return map[string]any(x), true
	default:
		return nil, false
	}
}

// String returns the string value at key, or "" if absent or not a string.
func (c Context) String(key string) (string, bool) {
	s, ok := c[key].(string)
	return s, ok
}

// Float returns the numeric value at key.
func (c Context) Float(key string) (float64, bool) {
	return ExtractFloat64(c[key])
}

// The *Or accessors read optional inputs. An absent or null key yields def;
// ok is false only when the key is present with a value of the wrong shape,
// so callers can reject it instead of silently using the default.

// FloatOr returns the numeric value at key, or def when absent.
func (c Context) FloatOr(key string, def float64) (float64, bool) {
	v, present := c[key]
	if !present || v == nil {
		return def, true
	}
	f, ok := ExtractFloat64(v)
	if !ok {
		return 0, false
	}
	return f, true
}

// IntOr returns the integer value at key, or def when absent. Floats are
// accepted only when they hold a whole number.
func (c Context) IntOr(key string, def int) (int, bool) {
	v, present := c[key]
	if !present || v == nil {
		return def, true
	}
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	case float32:
		if float64(x) != math.Trunc(float64(x)) {
			return 0, false
		}
		return int(x), true
	}
	n, ok := ExtractInt64(v)
	if !ok {
		return 0, false
	}
	return int(n), true
}

// BoolOr returns the boolean value at key, or def when absent. The strings
// "true" and "false" are accepted.
func (c Context) BoolOr(key string, def bool) (bool, bool) {
	v, present := c[key]
	if !present || v == nil {
		return def, true
	}
	return ExtractBool(v)
}

// FloatSlice returns the numeric sequence at key.
func (c Context) FloatSlice(key string) ([]float64, bool) {
	return ExtractFloatSlice(c[key])
}
