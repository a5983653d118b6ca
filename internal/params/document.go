// Package params owns the parameter document: the single canonical mapping
// from analysis module names to module configurations. A fresh document is
// cloned from the embedded defaults, mutated by upload ingestion and form
// assembly, validated, and finally frozen to disk before dispatch.
package params

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed defaults.json
var defaultsJSON []byte

// Document maps module names (e.g. "PeaktableParameters") to their
// configuration mappings. Module keys present in the defaults are never
// deleted, only updated.
type Document map[string]map[string]any

// Defaults returns a fresh parameter document populated from the embedded
// defaults. Each call returns an independent copy safe to mutate.
func Defaults() (Document, error) {
	var doc Document
	if err := json.Unmarshal(defaultsJSON, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode embedded defaults: %w", err)
	}
	return doc, nil
}

// Clone returns a deep copy of the document via a JSON round trip. The
// document is JSON-decoded data by construction, so the round trip cannot
// fail on well-formed input.
func (d Document) Clone() Document {
	raw, err := json.Marshal(d)
	if err != nil {
		return Document{}
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return Document{}
	}
	return out
}

// Set assigns a leaf value on the named module. Unknown modules are an
// error: the defaults define the complete module universe.
func (d Document) Set(module, key string, value any) error {
	m, ok := d[module]
	if !ok {
		return fmt.Errorf("unknown module %q", module)
	}
	m[key] = value
	return nil
}

// GetString returns the string value of a module leaf key, or "" when the
// module or key is absent or not a string.
func (d Document) GetString(module, key string) string {
	if m, ok := d[module]; ok {
		if s, ok := m[key].(string); ok {
			return s
		}
	}
	return ""
}

// GetFloat returns the numeric value of a module leaf key. JSON decoding
// produces float64 for all numbers; int is accepted for values set in code.
func (d Document) GetFloat(module, key string) (float64, bool) {
	m, ok := d[module]
	if !ok {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Activated reports whether the named module carries activate_module=true.
func (d Document) Activated(module string) bool {
	if m, ok := d[module]; ok {
		if b, ok := m["activate_module"].(bool); ok {
			return b
		}
	}
	return false
}

// WriteFile serializes the document to path with two-space indentation,
// matching the on-disk parameter file format consumed by the worker.
func (d Document) WriteFile(path string) error {
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize parameter document: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write parameter document: %w", err)
	}
	return nil
}

// ReadFile loads a parameter document previously persisted by WriteFile.
func ReadFile(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode parameter document: %w", err)
	}
	return doc, nil
}
