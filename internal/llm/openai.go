package llm

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"rentl/internal/errs"
)

const (
	defaultOpenAIKeyEnv  = "OPENAI_API_KEY"
	defaultOpenAITimeout = 120 * time.Second
)

// OpenAIConfig configures the OpenAI runtime adapter.
type OpenAIConfig struct {
	BaseURL   string
	APIKeyEnv string
}

// OpenAIRuntime runs structured prompts through the Responses API.
type OpenAIRuntime struct {
	client openai.Client
}

// NewOpenAIRuntime constructs the adapter. The API key is read from the
// configured environment variable.
func NewOpenAIRuntime(cfg OpenAIConfig) (*OpenAIRuntime, error) {
	envKey := strings.TrimSpace(cfg.APIKeyEnv)
	if envKey == "" {
		envKey = defaultOpenAIKeyEnv
	}
	apiKey := strings.TrimSpace(os.Getenv(envKey))
	if apiKey == "" {
		return nil, errs.Newf(errs.CodeConfig, "openai api key env %s is empty", envKey).
			WithNext("export the API key or set agents.<phase>.api_key_env")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIRuntime{client: openai.NewClient(opts...)}, nil
}

// RunPrompt executes one structured call with in-call schema retries.
func (r *OpenAIRuntime) RunPrompt(ctx context.Context, prompt Prompt, schema *Schema, settings Settings) (json.RawMessage, error) {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = defaultOpenAITimeout
	}

	instructions := prompt.System + schemaInstruction(schema)
	input := prompt.User

	attempts := settings.Retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		text, err := r.complete(callCtx, instructions, input, settings)
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
		input = prompt.User + "\n\n" + schemaErr.Feedback()
	}
	return nil, lastErr
}

func (r *OpenAIRuntime) complete(ctx context.Context, instructions, input string, settings Settings) (string, error) {
	params := responses.ResponseNewParams{
		Model:        settings.Model,
		Instructions: openai.String(instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(input),
		},
	}
	if settings.Temperature > 0 {
		params.Temperature = openai.Float(settings.Temperature)
	}
	if settings.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(settings.MaxOutputTokens))
	}

	resp, err := r.client.Responses.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", errs.Wrap(ctx.Err(), errs.CodeConnection, "openai call timed out").
				WithNext("raise agents.<phase>.request_timeout_s or check connectivity")
		}
		return "", errs.Wrap(err, errs.CodeConnection, "openai responses.create").
			WithNext("run validate-connection")
	}
	if msg := strings.TrimSpace(resp.Error.Message); msg != "" {
		return "", errs.Newf(errs.CodeConnection, "openai response failed: %s", msg)
	}
	output := strings.TrimSpace(resp.OutputText())
	if output == "" {
		return "", errs.New(errs.CodeConnection, "openai response did not contain output text")
	}
	return output, nil
}

var _ Runtime = (*OpenAIRuntime)(nil)

// ProviderRuntime builds a runtime for the named provider.
func ProviderRuntime(provider string, cfg ProviderConfig) (Runtime, error) {
	switch provider {
	case "openai":
		return NewOpenAIRuntime(OpenAIConfig{BaseURL: cfg.BaseURL, APIKeyEnv: cfg.APIKeyEnv})
	case "gemini":
		return NewGeminiRuntime(context.Background(), GeminiConfig{APIKeyEnv: cfg.APIKeyEnv})
	default:
		return nil, errs.Newf(errs.CodeConfig, "unknown llm provider %q", provider).
			WithNext(`use "openai" or "gemini"`)
	}
}

// ProviderConfig is the provider-agnostic adapter configuration.
type ProviderConfig struct {
	BaseURL   string
	APIKeyEnv string
}
