package phase

import (
	"context"
	"encoding/json"
	"time"

	"rentl/internal/config"
	"rentl/internal/errs"
	"rentl/internal/llm"
	"rentl/internal/profile"
	"rentl/internal/prompt"
)

// llmCaller binds a runtime, a resolved profile, and call settings for
// one phase execution.
type llmCaller struct {
	runtime  llm.Runtime
	profile  profile.Resolved
	settings llm.Settings
	data     map[string]any
}

func newCaller(runtime llm.Runtime, prof profile.Resolved, cfg config.AgentConfig, in Input) llmCaller {
	modelID := cfg.Model
	if modelID == "" {
		modelID = prof.ModelHints[cfg.Provider]
	}
	return llmCaller{
		runtime: runtime,
		profile: prof,
		settings: llm.Settings{
			Model:           modelID,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
			Timeout:         time.Duration(cfg.RequestTimeoutS) * time.Second,
			Retries:         cfg.MaxChunkRetries,
		},
		data: map[string]any{
			"SourceLanguage": in.SourceLanguage,
			"TargetLanguage": in.Language,
			"StyleGuide":     in.StyleGuide,
		},
	}
}

// call renders the prompt, sends one structured request, and decodes
// the schema-valid payload into out.
func (c llmCaller) call(ctx context.Context, payload any, feedback string, out any) error {
	system, err := prompt.Compose(c.profile.PromptLayers, c.data)
	if err != nil {
		return errs.Wrap(err, errs.CodeConfig, "compose prompt for profile "+c.profile.Name).
			WithNext("fix the profile's prompt_layers templates")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(err, errs.CodeRuntime, "encode request payload")
	}
	user := string(body)
	if feedback != "" {
		user += "\n\n" + feedback
	}

	raw, err := c.runtime.RunPrompt(ctx, llm.Prompt{System: system, User: user}, c.profile.Schema, c.settings)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.Wrap(err, errs.CodeRuntime, "decode validated payload")
	}
	return nil
}
