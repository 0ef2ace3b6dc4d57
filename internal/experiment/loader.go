package experiment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a descriptor from a .yaml, .yml or .json file.
func Load(path string) (*Descriptor, error) {
	var parse func([]byte) (*Descriptor, error)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parse = Parse
	case ".json":
		parse = ParseJSON
	default:
		return nil, fmt.Errorf("unsupported descriptor extension %q (want .yaml, .yml or .json)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	d, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	d.dir = filepath.Dir(abs)
	return d, nil
}

// Parse decodes a descriptor. Unknown fields are rejected so typos like
// "targetVariant" fail instead of silently selecting the wrong protocol.
func Parse(data []byte) (*Descriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Descriptor
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor: %w", err)
	}
	return &d, nil
}

// ParseJSON decodes a JSON descriptor, rejecting unknown fields.
func ParseJSON(data []byte) (*Descriptor, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var d Descriptor
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor: %w", err)
	}
	return &d, nil
}

// ScriptSource returns the Go source of a script entry, reading Path
// relative to the descriptor's directory.
func (d *Descriptor) ScriptSource(s ScriptSpec) (string, error) {
	if s.Source != "" {
		return s.Source, nil
	}
	data, err := os.ReadFile(d.ScriptPath(s))
	if err != nil {
		return "", fmt.Errorf("failed to read script %q: %w", s.Name, err)
	}
	return string(data), nil
}

// ScriptPath resolves a script entry's Path against the descriptor's
// directory. It returns "" for inline scripts.
func (d *Descriptor) ScriptPath(s ScriptSpec) string {
	if s.Path == "" {
		return ""
	}
	if filepath.IsAbs(s.Path) || d.dir == "" {
		return s.Path
	}
	return filepath.Join(d.dir, s.Path)
}

// Save writes the descriptor as YAML.
func (d *Descriptor) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create descriptor directory: %w", err)
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal descriptor: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write descriptor: %w", err)
	}
	return nil
}
