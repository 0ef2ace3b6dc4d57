// Package types holds the value types that flow between units and the engine:
// the task Context handed to a unit, the Metrics it returns, and the Results
// an experiment produces.
//
// All three are open string-keyed maps. Context is mutable-by-copy: every
// helper that "changes" a Context returns a new value and leaves the
// receiver untouched, so a single Context can be shared by concurrently
// running units.
package types

import (
	"sort"
)

// Context is the open-ended task input handed to every unit of an experiment.
type Context map[string]any

// Clone returns a shallow copy of the context. A nil context clones to an
// empty, non-nil one.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// With returns a copy of the context with key set to value.
func (c Context) With(key string, value any) Context {
	out := c.Clone()
	out[key] = value
	return out
}

// Merge returns a copy of the context overlaid with overrides. Keys present
// in both take the override's value; every other key of c is preserved.
func (c Context) Merge(overrides map[string]any) Context {
	out := c.Clone()
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Keys returns the context keys in sorted order.
func (c Context) Keys() []string {
	return sortedKeys(c)
}

// Has reports whether key is present.
func (c Context) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// MissingKeys returns the keys of seed that are absent from c, sorted.
func (c Context) MissingKeys(seed Context) []string {
	var missing []string
	for k := range seed {
		if _, ok := c[k]; !ok {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
