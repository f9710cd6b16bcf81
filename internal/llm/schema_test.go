package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = MustCompileSchema("test.lines", `{
	"type": "object",
	"required": ["lines"],
	"properties": {
		"lines": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["line_id", "text"],
				"properties": {
					"line_id": {"type": "string"},
					"text": {"type": "string"}
				}
			}
		}
	}
}`)

func TestNormalizeValidPayload(t *testing.T) {
	payload, err := testSchema.Normalize([]byte(`{"lines":[{"line_id":"a_1","text":"one"}]}`))
	require.NoError(t, err)
	var out struct {
		Lines []struct {
			LineID string `json:"line_id"`
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(payload, &out))
	assert.Equal(t, "a_1", out.Lines[0].LineID)
}

func TestNormalizeStripsFencesAndProse(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"lines\":[{\"line_id\":\"a_1\",\"text\":\"one\"}]}\n```\nDone."
	_, err := testSchema.Normalize([]byte(raw))
	assert.NoError(t, err)
}

func TestNormalizeRepairsNearJSON(t *testing.T) {
	// Trailing comma and single quotes, the classic model slip.
	raw := `{"lines":[{"line_id":"a_1","text":"one"},]}`
	_, err := testSchema.Normalize([]byte(raw))
	assert.NoError(t, err)
}

func TestNormalizeSchemaViolation(t *testing.T) {
	_, err := testSchema.Normalize([]byte(`{"lines":[{"line_id":"a_1"}]}`))
	require.Error(t, err)
	schemaErr, ok := err.(*SchemaError)
	require.True(t, ok)
	assert.Equal(t, "test.lines", schemaErr.SchemaID)
	assert.NotEmpty(t, schemaErr.Problems)
	assert.Contains(t, schemaErr.Feedback(), "JSON schema")
}

func TestNormalizeGarbage(t *testing.T) {
	_, err := testSchema.Normalize([]byte("I could not produce a translation."))
	require.Error(t, err)
	_, ok := err.(*SchemaError)
	assert.True(t, ok)
}
