// Package config provides configuration loading and management for rentl.
package config

import (
	"rentl/internal/model"
)

// Defaults applied by Normalize.
const (
	DefaultChunkSize           = 10
	DefaultMaxConcurrentChunks = 4
	DefaultMaxChunkRetries     = 3
	DefaultRequestTimeoutS     = 120
)

// Config is the root configuration.
type Config struct {
	Phases             PhasesConfig           `json:"phases"              mapstructure:"phases"`
	Languages          Languages              `json:"languages"           mapstructure:"languages"`
	Agents             map[string]AgentConfig `json:"agents"              mapstructure:"agents"`
	Storage            Storage                `json:"storage"             mapstructure:"storage"`
	Determinism        Determinism            `json:"determinism"         mapstructure:"determinism"`
	UntranslatedPolicy string                 `json:"untranslated_policy" mapstructure:"untranslated_policy"`
	StyleGuide         string                 `json:"style_guide,omitempty" mapstructure:"style_guide"`
}

// PhasesConfig selects the enabled phases and their open parameters.
type PhasesConfig struct {
	Enabled    []string                  `json:"enabled"              mapstructure:"enabled"`
	Parameters map[string]map[string]any `json:"parameters,omitempty" mapstructure:"parameters"`
}

// Languages names the source language and translation targets.
type Languages struct {
	Source  string   `json:"source"  mapstructure:"source"`
	Targets []string `json:"targets" mapstructure:"targets"`
}

// AgentConfig describes how one phase's agent runs.
type AgentConfig struct {
	Provider            string  `json:"provider"                mapstructure:"provider"`
	Model               string  `json:"model"                   mapstructure:"model"`
	Profile             string  `json:"profile,omitempty"       mapstructure:"profile"`
	Temperature         float64 `json:"temperature"             mapstructure:"temperature"`
	MaxOutputTokens     int     `json:"max_output_tokens"       mapstructure:"max_output_tokens"`
	ChunkSize           int     `json:"chunk_size"              mapstructure:"chunk_size"`
	MaxConcurrentChunks int     `json:"max_concurrent_chunks"   mapstructure:"max_concurrent_chunks"`
	MaxChunkRetries     int     `json:"max_chunk_retries"       mapstructure:"max_chunk_retries"`
	RequestTimeoutS     int     `json:"request_timeout_s"       mapstructure:"request_timeout_s"`
	BaseURL             string  `json:"base_url,omitempty"      mapstructure:"base_url"`
	APIKeyEnv           string  `json:"api_key_env,omitempty"   mapstructure:"api_key_env"`
}

// Storage locates the workspace and log directories.
type Storage struct {
	WorkspaceDir string `json:"workspace_dir" mapstructure:"workspace_dir"`
	LogsDir      string `json:"logs_dir"      mapstructure:"logs_dir"`
}

// Determinism holds the optional seed for randomized selection inside
// the core. It never influences LLM output.
type Determinism struct {
	Seed *int64 `json:"seed,omitempty" mapstructure:"seed"`
}

// EnabledPhases returns the enabled phases in canonical order.
func (c Config) EnabledPhases() []model.Phase {
	enabled := make(map[string]bool, len(c.Phases.Enabled))
	for _, name := range c.Phases.Enabled {
		enabled[name] = true
	}
	var out []model.Phase
	for _, p := range model.PhaseOrder {
		if enabled[string(p)] {
			out = append(out, p)
		}
	}
	return out
}

// PhaseEnabled reports whether the phase is in the enabled set.
func (c Config) PhaseEnabled(p model.Phase) bool {
	for _, name := range c.Phases.Enabled {
		if name == string(p) {
			return true
		}
	}
	return false
}

// Agent returns the agent config for the phase with defaults applied.
// Context defaults to one chunk per scene (chunk size 1).
func (c Config) Agent(p model.Phase) AgentConfig {
	agent := c.Agents[string(p)]
	if agent.ChunkSize <= 0 {
		if p == model.PhaseContext {
			agent.ChunkSize = 1
		} else {
			agent.ChunkSize = DefaultChunkSize
		}
	}
	if agent.MaxConcurrentChunks <= 0 {
		agent.MaxConcurrentChunks = DefaultMaxConcurrentChunks
	}
	if agent.MaxChunkRetries <= 0 {
		agent.MaxChunkRetries = DefaultMaxChunkRetries
	}
	if agent.RequestTimeoutS <= 0 {
		agent.RequestTimeoutS = DefaultRequestTimeoutS
	}
	return agent
}

// PhaseParameters returns the open parameter map for the phase, never nil.
func (c Config) PhaseParameters(p model.Phase) map[string]any {
	params := c.Phases.Parameters[string(p)]
	if params == nil {
		return map[string]any{}
	}
	return params
}
