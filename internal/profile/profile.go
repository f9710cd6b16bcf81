// Package profile resolves declarative agent profiles. A profile names
// its phase, prompt layers, output schema identifier, and tool
// allowlist; the schema identifier binds to a typed parser through an
// explicit registry, never by dynamic lookup.
package profile

import (
	"fmt"
	"sort"
	"strings"

	"rentl/internal/errs"
	"rentl/internal/llm"
	"rentl/internal/model"
	"rentl/internal/prompt"
)

// Profile is one fully declarative agent description.
type Profile struct {
	Name         string            `yaml:"name"`
	Phase        string            `yaml:"phase"`
	PromptLayers prompt.Layers     `yaml:"prompt_layers"`
	OutputSchema string            `yaml:"output_schema"`
	Tools        []string          `yaml:"tools,omitempty"`
	ModelHints   map[string]string `yaml:"model_hints,omitempty"`
}

// Resolved is a profile bound to its compiled output schema.
type Resolved struct {
	Profile
	Schema *llm.Schema
}

// SchemaRegistry maps stable output-schema identifiers to compiled
// schemas.
type SchemaRegistry struct {
	schemas map[string]*llm.Schema
}

// NewSchemaRegistry builds a registry from compiled schemas.
func NewSchemaRegistry(schemas ...*llm.Schema) *SchemaRegistry {
	reg := &SchemaRegistry{schemas: make(map[string]*llm.Schema, len(schemas))}
	for _, s := range schemas {
		reg.schemas[s.ID] = s
	}
	return reg
}

// Lookup returns the schema for an identifier. Unknown identifiers are
// load-time errors naming the legal set.
func (r *SchemaRegistry) Lookup(id string) (*llm.Schema, error) {
	if s, ok := r.schemas[id]; ok {
		return s, nil
	}
	known := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		known = append(known, k)
	}
	sort.Strings(known)
	return nil, errs.Newf(errs.CodeConfig, "unknown output schema %q (known: %s)", id, strings.Join(known, ", ")).
		WithNext("fix the profile's output_schema field")
}

// Resolve validates the profile and binds its schema.
func (r *SchemaRegistry) Resolve(p Profile) (Resolved, error) {
	if p.Name == "" {
		return Resolved{}, errs.New(errs.CodeConfig, "profile is missing a name")
	}
	if !model.Phase(p.Phase).Valid() {
		return Resolved{}, errs.Newf(errs.CodeConfig, "profile %s names unknown phase %q", p.Name, p.Phase).
			WithNext(fmt.Sprintf("use one of %v", model.PhaseOrder))
	}
	schema, err := r.Lookup(p.OutputSchema)
	if err != nil {
		return Resolved{}, fmt.Errorf("profile %s: %w", p.Name, err)
	}
	return Resolved{Profile: p, Schema: schema}, nil
}
