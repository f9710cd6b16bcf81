package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/xeipuuv/gojsonschema"

	"rentl/internal/errs"
)

// Schema is a compiled JSON schema with its stable identifier.
type Schema struct {
	ID       string
	Document string
	compiled *gojsonschema.Schema
}

// CompileSchema compiles a JSON schema document under a stable id.
func CompileSchema(id, document string) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(document))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", id, err)
	}
	return &Schema{ID: id, Document: document, compiled: compiled}, nil
}

// MustCompileSchema is CompileSchema for package-level schema literals.
func MustCompileSchema(id, document string) *Schema {
	s, err := CompileSchema(id, document)
	if err != nil {
		panic(err)
	}
	return s
}

// SchemaError reports a payload that failed validation after repair.
type SchemaError struct {
	SchemaID string
	Problems []string
	Payload  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("payload does not match schema %s: %s", e.SchemaID, strings.Join(e.Problems, "; "))
}

// Feedback renders the repair instruction sent back to the model.
func (e *SchemaError) Feedback() string {
	var b strings.Builder
	b.WriteString("The previous response was not valid against the required JSON schema.\n")
	for _, problem := range e.Problems {
		b.WriteString("- " + problem + "\n")
	}
	b.WriteString("Respond again with a single JSON object matching the schema exactly. No prose, no code fences.")
	return b.String()
}

// Normalize extracts, repairs, and validates a raw model response.
// Markdown fences and surrounding prose are stripped, near-JSON is
// repaired, and the result is checked against the schema.
func (s *Schema) Normalize(raw []byte) (json.RawMessage, error) {
	payload := extractJSON(string(raw))
	if !json.Valid([]byte(payload)) {
		repaired, err := jsonrepair.JSONRepair(payload)
		if err != nil {
			return nil, &SchemaError{
				SchemaID: s.ID,
				Problems: []string{"response is not parseable JSON: " + err.Error()},
				Payload:  payload,
			}
		}
		payload = repaired
	}

	result, err := s.compiled.Validate(gojsonschema.NewStringLoader(payload))
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeRuntime, "run schema validation")
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, &SchemaError{SchemaID: s.ID, Problems: problems, Payload: payload}
	}
	return json.RawMessage(payload), nil
}

// extractJSON finds the outermost JSON object or array in a response
// that may carry fences or prose around it.
func extractJSON(s string) string {
	trimmed := strings.TrimSpace(s)
	if fenced, ok := stripFence(trimmed); ok {
		trimmed = fenced
	}
	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return trimmed
	}
	closing := byte('}')
	if trimmed[start] == '[' {
		closing = ']'
	}
	end := strings.LastIndexByte(trimmed, closing)
	if end <= start {
		return trimmed[start:]
	}
	return trimmed[start : end+1]
}

func stripFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") {
		return "", false
	}
	body := strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		body = body[idx+1:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body), true
}

// schemaInstruction is appended to the system prompt of structured calls.
func schemaInstruction(schema *Schema) string {
	return "\n\nRespond with a single JSON object that validates against this JSON schema:\n" +
		schema.Document +
		"\nDo not wrap the object in code fences or add commentary."
}
