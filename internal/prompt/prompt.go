// Package prompt composes layered prompt templates into resolved
// strings. The orchestrator core only ever sees the composed result.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// Layers are the template texts applied in order: root conventions,
// phase instructions, then agent specifics. Empty layers are skipped.
type Layers struct {
	Root  string
	Phase string
	Agent string
}

// Compose renders each layer against data and joins the non-empty
// results with blank lines.
func Compose(layers Layers, data any) (string, error) {
	var parts []string
	for i, text := range []string{layers.Root, layers.Phase, layers.Agent} {
		if strings.TrimSpace(text) == "" {
			continue
		}
		rendered, err := render(fmt.Sprintf("layer_%d", i), text, data)
		if err != nil {
			return "", err
		}
		parts = append(parts, strings.TrimSpace(rendered))
	}
	return strings.Join(parts, "\n\n"), nil
}

// Render resolves a single template against data.
func Render(name, text string, data any) (string, error) {
	return render(name, text, data)
}

func render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt template %s: %w", name, err)
	}
	return b.String(), nil
}
