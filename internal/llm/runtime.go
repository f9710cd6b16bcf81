// Package llm defines the runtime port for structured LLM calls and the
// concrete OpenAI and Gemini adapters.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Prompt is a fully resolved prompt pair for one call.
type Prompt struct {
	System string
	User   string
}

// Settings control a single structured call.
type Settings struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
	// Retries bounds in-call schema-repair attempts. Alignment retries
	// are the agent pool's concern, not the runtime's.
	Retries int
}

// Runtime executes one prompt and returns schema-valid JSON.
type Runtime interface {
	RunPrompt(ctx context.Context, prompt Prompt, schema *Schema, settings Settings) (json.RawMessage, error)
}
