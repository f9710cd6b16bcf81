package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentl/internal/errs"
	"rentl/internal/model"
)

func validConfig() Config {
	return Config{
		Phases: PhasesConfig{
			Enabled: []string{"ingest", "translate", "export"},
		},
		Languages: Languages{Source: "ja", Targets: []string{"en"}},
		Storage:   Storage{WorkspaceDir: ".rentl", LogsDir: "logs"},
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateMissingIngest(t *testing.T) {
	cfg := validConfig()
	cfg.Phases.Enabled = []string{"translate"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, errs.CodeConfig, errs.CodeOf(err))
}

func TestValidateUnknownPhase(t *testing.T) {
	cfg := validConfig()
	cfg.Phases.Enabled = append(cfg.Phases.Enabled, "review")
	assert.Error(t, cfg.Validate())
}

func TestValidateNoTargets(t *testing.T) {
	cfg := validConfig()
	cfg.Languages.Targets = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateUntranslatedPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.UntranslatedPolicy = "skip"
	assert.Error(t, cfg.Validate())
	cfg.UntranslatedPolicy = "warn"
	assert.NoError(t, cfg.Validate())
}

func TestAgentDefaults(t *testing.T) {
	cfg := validConfig()
	agent := cfg.Agent(model.PhaseTranslate)
	assert.Equal(t, DefaultChunkSize, agent.ChunkSize)
	assert.Equal(t, DefaultMaxConcurrentChunks, agent.MaxConcurrentChunks)
	assert.Equal(t, DefaultMaxChunkRetries, agent.MaxChunkRetries)

	// Context chunks one scene at a time.
	assert.Equal(t, 1, cfg.Agent(model.PhaseContext).ChunkSize)
}

func TestPhaseFingerprintStable(t *testing.T) {
	a := validConfig()
	b := validConfig()
	assert.Equal(t, a.PhaseFingerprint(model.PhaseTranslate), b.PhaseFingerprint(model.PhaseTranslate))
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestPhaseFingerprintTracksChunkSize(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.Agents = map[string]AgentConfig{"translate": {ChunkSize: 25}}
	assert.NotEqual(t, a.PhaseFingerprint(model.PhaseTranslate), b.PhaseFingerprint(model.PhaseTranslate))
	// Other phases unaffected.
	assert.Equal(t, a.PhaseFingerprint(model.PhaseExport), b.PhaseFingerprint(model.PhaseExport))
}

func TestPhaseFingerprintIgnoresSecretsAndPaths(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.Agents = map[string]AgentConfig{"translate": {APIKeyEnv: "OTHER_KEY", BaseURL: "https://proxy.internal"}}
	b.Storage.WorkspaceDir = "/elsewhere"
	assert.Equal(t, a.PhaseFingerprint(model.PhaseTranslate), b.PhaseFingerprint(model.PhaseTranslate))

	// Paths carried as phase parameters are excluded too: relocating the
	// script or the export directory never stales completed work.
	a.Phases.Parameters = map[string]map[string]any{
		"ingest": {"input_path": "/old/place/script.jsonl"},
		"export": {"output_dir": "/old/place/out", "output_format": "jsonl"},
	}
	b.Phases.Parameters = map[string]map[string]any{
		"ingest": {"input_path": "/new/place/script.jsonl"},
		"export": {"output_dir": "/new/place/out", "output_format": "jsonl"},
	}
	assert.Equal(t, a.PhaseFingerprint(model.PhaseIngest), b.PhaseFingerprint(model.PhaseIngest))
	assert.Equal(t, a.PhaseFingerprint(model.PhaseExport), b.PhaseFingerprint(model.PhaseExport))
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	// Non-path parameters still count.
	b.Phases.Parameters["export"]["output_format"] = "csv"
	assert.NotEqual(t, a.PhaseFingerprint(model.PhaseExport), b.PhaseFingerprint(model.PhaseExport))
}
