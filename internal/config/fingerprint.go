package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"rentl/internal/model"
)

// phasePrint is the declarative slice of configuration that affects a
// phase's output. Secrets, endpoints, and filesystem paths stay out so
// that moving a workspace or rotating a key never invalidates a run.
type phasePrint struct {
	Phase              string         `json:"phase"`
	Provider           string         `json:"provider"`
	Model              string         `json:"model"`
	Profile            string         `json:"profile"`
	Temperature        float64        `json:"temperature"`
	MaxOutputTokens    int            `json:"max_output_tokens"`
	ChunkSize          int            `json:"chunk_size"`
	MaxChunkRetries    int            `json:"max_chunk_retries"`
	Parameters         map[string]any `json:"parameters"`
	SourceLanguage     string         `json:"source_language"`
	UntranslatedPolicy string         `json:"untranslated_policy,omitempty"`
	StyleGuide         string         `json:"style_guide,omitempty"`
}

// pathParameters are phase parameters that locate files rather than
// shape output. They follow the workspace around, so they are excluded
// from fingerprints like every other filesystem path.
var pathParameters = map[string]bool{
	"input_path": true,
	"output_dir": true,
}

func fingerprintParameters(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if pathParameters[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// PhaseFingerprint returns a stable hash of the configuration slice
// that determines the phase's output.
func (c Config) PhaseFingerprint(p model.Phase) string {
	agent := c.Agent(p)
	fp := phasePrint{
		Phase:           string(p),
		Provider:        agent.Provider,
		Model:           agent.Model,
		Profile:         agent.Profile,
		Temperature:     agent.Temperature,
		MaxOutputTokens: agent.MaxOutputTokens,
		ChunkSize:       agent.ChunkSize,
		MaxChunkRetries: agent.MaxChunkRetries,
		Parameters:      fingerprintParameters(c.PhaseParameters(p)),
		SourceLanguage:  c.Languages.Source,
	}
	if p == model.PhaseExport {
		fp.UntranslatedPolicy = c.UntranslatedPolicy
	}
	if p == model.PhaseQa {
		fp.StyleGuide = c.StyleGuide
	}
	return hashJSON(fp)
}

// Fingerprint returns the run-wide config fingerprint: a hash over the
// per-phase fingerprints of every enabled phase plus the target list.
func (c Config) Fingerprint() string {
	parts := map[string]string{}
	for _, p := range c.EnabledPhases() {
		parts[string(p)] = c.PhaseFingerprint(p)
	}
	targets := append([]string(nil), c.Languages.Targets...)
	sort.Strings(targets)
	return hashJSON(struct {
		Phases  map[string]string `json:"phases"`
		Targets []string          `json:"targets"`
	}{parts, targets})
}

// hashJSON relies on encoding/json emitting map keys in sorted order,
// which makes the digest stable for identical values.
func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only unmarshalable parameter values can land here.
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
