package llm

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"rentl/internal/errs"
)

const (
	defaultGeminiKeyEnv  = "GEMINI_API_KEY"
	defaultGeminiTimeout = 120 * time.Second
)

// GeminiConfig configures the Gemini runtime adapter.
type GeminiConfig struct {
	APIKeyEnv string
}

// GeminiRuntime runs structured prompts through the Gemini API.
type GeminiRuntime struct {
	client *genai.Client
}

// NewGeminiRuntime constructs the adapter.
func NewGeminiRuntime(ctx context.Context, cfg GeminiConfig) (*GeminiRuntime, error) {
	envKey := strings.TrimSpace(cfg.APIKeyEnv)
	if envKey == "" {
		envKey = defaultGeminiKeyEnv
	}
	apiKey := strings.TrimSpace(os.Getenv(envKey))
	if apiKey == "" {
		return nil, errs.Newf(errs.CodeConfig, "gemini api key env %s is empty", envKey).
			WithNext("export the API key or set agents.<phase>.api_key_env")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeConnection, "create gemini client")
	}
	return &GeminiRuntime{client: client}, nil
}

// RunPrompt executes one structured call with in-call schema retries.
func (r *GeminiRuntime) RunPrompt(ctx context.Context, prompt Prompt, schema *Schema, settings Settings) (json.RawMessage, error) {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = defaultGeminiTimeout
	}

	system := prompt.System + schemaInstruction(schema)
	user := prompt.User

	attempts := settings.Retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		text, err := r.generate(callCtx, system, user, settings)
		cancel()
		if err != nil {
			return nil, err
		}

		payload, err := schema.Normalize([]byte(text))
		if err == nil {
			return payload, nil
		}
		lastErr = err
		schemaErr, ok := err.(*SchemaError)
		if !ok {
			return nil, err
		}
		user = prompt.User + "\n\n" + schemaErr.Feedback()
	}
	return nil, lastErr
}

func (r *GeminiRuntime) generate(ctx context.Context, system, user string, settings Settings) (string, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	if settings.Temperature > 0 {
		temp := float32(settings.Temperature)
		config.Temperature = &temp
	}
	if settings.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(settings.MaxOutputTokens)
	}

	resp, err := r.client.Models.GenerateContent(ctx, settings.Model, genai.Text(user), config)
	if err != nil {
		if ctx.Err() != nil {
			return "", errs.Wrap(ctx.Err(), errs.CodeConnection, "gemini call timed out").
				WithNext("raise agents.<phase>.request_timeout_s or check connectivity")
		}
		return "", errs.Wrap(err, errs.CodeConnection, "gemini generate content").
			WithNext("run validate-connection")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errs.New(errs.CodeConnection, "gemini response did not contain text")
	}
	return text, nil
}

var _ Runtime = (*GeminiRuntime)(nil)
