// Package registry provides the name-keyed store of experiment units.
//
// A Registry is append-only: units are registered once at startup and then
// only read while experiments run. Registering a name twice is a
// programming error.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"agentarena/internal/unit"
)

var (
	ErrDuplicateName = errors.New("unit already registered")
	ErrNotFound      = errors.New("unit not found")
)

// DuplicateNameError is returned by Register for a name already present.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("unit %q already registered", e.Name)
}

func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }

// NotFoundError is returned by Get for an unregistered name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unit %q not found in registry", e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Registry maps unit names to unit instances.
type Registry struct {
	mu    sync.RWMutex
	units map[string]unit.Unit
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{units: make(map[string]unit.Unit)}
}

// Register stores u under its name. The registry is unchanged when an error
// is returned.
func (r *Registry) Register(u unit.Unit) error {
	if u == nil {
		return &unit.InvalidNameError{}
	}
	name := u.Name()
	if strings.TrimSpace(name) == "" {
		return &unit.InvalidNameError{Name: name}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.units[name]; exists {
		return &DuplicateNameError{Name: name}
	}
	r.units[name] = u
	return nil
}

// MustRegister registers every unit and panics on the first error.
func (r *Registry) MustRegister(units ...unit.Unit) {
	for _, u := range units {
		if err := r.Register(u); err != nil {
			panic(err)
		}
	}
}

// Get resolves name to its unit.
func (r *Registry) Get(name string) (unit.Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return u, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.units))
	for name := range r.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered units.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units)
}

// Entry describes a registered unit for listings.
type Entry struct {
	Name string    `json:"name"`
	Kind unit.Kind `json:"kind"`
}

// Entries returns name and capability kind of every unit, sorted by name.
func (r *Registry) Entries() []Entry {
	names := r.Names()
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		u, err := r.Get(name)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Name: name, Kind: unit.KindOf(u)})
	}
	return entries
}
