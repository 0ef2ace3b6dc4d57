// Package experiment defines the experiment descriptors the engine runs and
// loads them from YAML or JSON files.
package experiment

import (
	"errors"
	"fmt"
	"strings"

	"agentarena/internal/types"
)

// Experiment runs every listed unit against one shared context.
type Experiment struct {
	Name     string
	Variants []string
	Context  types.Context
}

// AdversarialExperiment lets one generator build the context that every
// target unit then runs against.
type AdversarialExperiment struct {
	Name               string
	AdversarialVariant string
	TargetVariants     []string
	SeedContext        types.Context
}

// ScriptSpec declares an interpreted unit inside a descriptor. Exactly one
// of Source and Path is set; Path is relative to the descriptor file.
type ScriptSpec struct {
	Name   string `yaml:"name" json:"name"`
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
	Path   string `yaml:"path,omitempty" json:"path,omitempty"`
}

// Descriptor is the on-disk form of either experiment shape. It is
// adversarial iff adversarialVariant or targetVariants is present.
type Descriptor struct {
	Name               string         `yaml:"name" json:"name"`
	Description        string         `yaml:"description,omitempty" json:"description,omitempty"`
	Variants           []string       `yaml:"variants,omitempty" json:"variants,omitempty"`
	Context            map[string]any `yaml:"context,omitempty" json:"context,omitempty"`
	AdversarialVariant string         `yaml:"adversarialVariant,omitempty" json:"adversarialVariant,omitempty"`
	TargetVariants     []string       `yaml:"targetVariants,omitempty" json:"targetVariants,omitempty"`
	SeedContext        map[string]any `yaml:"seedContext,omitempty" json:"seedContext,omitempty"`
	Scripts            []ScriptSpec   `yaml:"scripts,omitempty" json:"scripts,omitempty"`

	// dir is the directory of the file the descriptor was loaded from.
	dir string
}

// ErrInvalidDescriptor wraps every validation failure.
var ErrInvalidDescriptor = errors.New("invalid experiment descriptor")

// IsAdversarial reports whether the descriptor selects the adversarial
// protocol.
func (d *Descriptor) IsAdversarial() bool {
	return d.AdversarialVariant != "" || len(d.TargetVariants) > 0
}

// Dir returns the directory the descriptor was loaded from, or "" when it
// was parsed from bytes.
func (d *Descriptor) Dir() string { return d.dir }

// Validate checks the descriptor shape. It does not resolve unit names.
func (d *Descriptor) Validate() error {
	var problems []string

	if strings.TrimSpace(d.Name) == "" {
		problems = append(problems, "name is required")
	}

	if d.IsAdversarial() {
		if strings.TrimSpace(d.AdversarialVariant) == "" {
			problems = append(problems, "adversarialVariant is required when targetVariants is set")
		}
		if len(d.TargetVariants) == 0 {
			problems = append(problems, "targetVariants must list at least one unit")
		}
		if len(d.Variants) > 0 {
			problems = append(problems, "variants cannot be combined with adversarialVariant/targetVariants")
		}
	} else if len(d.Variants) == 0 {
		problems = append(problems, "variants must list at least one unit")
	}

	seen := make(map[string]bool)
	for i, s := range d.Scripts {
		switch {
		case strings.TrimSpace(s.Name) == "":
			problems = append(problems, fmt.Sprintf("scripts[%d]: name is required", i))
		case seen[s.Name]:
			problems = append(problems, fmt.Sprintf("scripts[%d]: duplicate script name %q", i, s.Name))
		}
		seen[s.Name] = true
		if (s.Source == "") == (s.Path == "") {
			problems = append(problems, fmt.Sprintf("scripts[%d]: exactly one of source or path is required", i))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDescriptor, strings.Join(problems, "; "))
	}
	return nil
}

// Standard converts the descriptor to an Experiment.
func (d *Descriptor) Standard() Experiment {
	return Experiment{
		Name:     d.Name,
		Variants: append([]string(nil), d.Variants...),
		Context:  types.Context(d.Context).Clone(),
	}
}

// Adversarial converts the descriptor to an AdversarialExperiment. A
// descriptor that only sets context is treated as giving the seed.
func (d *Descriptor) Adversarial() AdversarialExperiment {
	seed := d.SeedContext
	if seed == nil {
		seed = d.Context
	}
	var seedCtx types.Context
	if seed != nil {
		seedCtx = types.Context(seed).Clone()
	}
	return AdversarialExperiment{
		Name:               d.Name,
		AdversarialVariant: d.AdversarialVariant,
		TargetVariants:     append([]string(nil), d.TargetVariants...),
		SeedContext:        seedCtx,
	}
}

// UnitNames returns every unit name the descriptor refers to, in order,
// with the adversarial variant first.
func (d *Descriptor) UnitNames() []string {
	if d.IsAdversarial() {
		return append([]string{d.AdversarialVariant}, d.TargetVariants...)
	}
	return append([]string(nil), d.Variants...)
}
