package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"rentl/internal/config"
	"rentl/internal/db"
	"rentl/internal/errs"
	"rentl/internal/export"
	"rentl/internal/ingest"
	"rentl/internal/llm"
	"rentl/internal/model"
	"rentl/internal/orchestrator"
	"rentl/internal/phase"
	"rentl/internal/profile"
	"rentl/internal/sink"
	"rentl/internal/store"
)

func loadConfig() (config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		path = filepath.Join(".rentl", "config.yaml")
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return config.Config{}, errs.Wrap(err, errs.CodeConfig, "read config").
			WithNext("run rentl init to scaffold a configuration")
	}
	var cfg config.Config
	if err := viper.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		// YAML written by hand tends to mix scalar types; coerce them.
		dc.WeaklyTypedInput = true
	}); err != nil {
		return config.Config{}, errs.Wrap(err, errs.CodeConfig, "parse config")
	}
	if cfg.Storage.WorkspaceDir == "" {
		cfg.Storage.WorkspaceDir = "."
	}
	if cfg.Storage.LogsDir == "" {
		cfg.Storage.LogsDir = filepath.Join(cfg.Storage.WorkspaceDir, ".rentl", "logs")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func buildStores(cfg config.Config) store.Bundle {
	return store.Bundle{
		RunStates: store.NewRunStateStore(cfg.Storage.WorkspaceDir),
		Artifacts: store.NewArtifactStore(cfg.Storage.WorkspaceDir),
		Logs:      store.NewLogStore(cfg.Storage.LogsDir),
	}
}

// runtimeCache shares one LLM adapter per provider endpoint across
// phases.
type runtimeCache map[string]llm.Runtime

func (c runtimeCache) forAgent(agent config.AgentConfig) (llm.Runtime, error) {
	key := agent.Provider + "|" + agent.BaseURL + "|" + agent.APIKeyEnv
	if rt, ok := c[key]; ok {
		return rt, nil
	}
	rt, err := llm.ProviderRuntime(agent.Provider, llm.ProviderConfig{
		BaseURL:   agent.BaseURL,
		APIKeyEnv: agent.APIKeyEnv,
	})
	if err != nil {
		return nil, err
	}
	c[key] = rt
	return rt, nil
}

// loadProfiles merges profile overrides from .rentl/profiles over the
// built-in defaults.
func loadProfiles(cfg config.Config) (map[model.Phase]profile.Resolved, error) {
	profiles := phase.DefaultProfiles()
	dir := filepath.Join(cfg.Storage.WorkspaceDir, ".rentl", "profiles")
	overrides, err := profile.LoadDir(dir, phase.DefaultSchemaRegistry())
	if err != nil {
		return nil, err
	}
	for p, resolved := range overrides {
		profiles[p] = resolved
	}
	return profiles, nil
}

func buildAgents(cfg config.Config) (phase.Registry, error) {
	profiles, err := loadProfiles(cfg)
	if err != nil {
		return nil, err
	}
	runtimes := make(runtimeCache)

	agents := []phase.Agent{
		phase.NewIngestAgent(ingest.NewFileReader()),
		phase.NewExportAgent(export.NewFileWriter(), cfg.Storage.WorkspaceDir, cfg.UntranslatedPolicy),
	}

	// Phases that cannot run without a model.
	for _, p := range []model.Phase{model.PhaseContext, model.PhasePretranslate, model.PhaseTranslate} {
		if !cfg.PhaseEnabled(p) {
			continue
		}
		agent := cfg.Agent(p)
		if agent.Provider == "" {
			return nil, errs.Newf(errs.CodeConfig, "phase %s is enabled but agents.%s.provider is not set", p, p).
				WithNext("configure a provider for the phase or disable it")
		}
		rt, err := runtimes.forAgent(agent)
		if err != nil {
			return nil, err
		}
		switch p {
		case model.PhaseContext:
			agents = append(agents, phase.NewContextAgent(rt, profiles[p], agent))
		case model.PhasePretranslate:
			agents = append(agents, phase.NewPretranslateAgent(rt, profiles[p], agent))
		case model.PhaseTranslate:
			agents = append(agents, phase.NewTranslateAgent(rt, profiles[p], agent))
		}
	}

	// QA and edit degrade to deterministic checks and an identity pass
	// when no provider is configured.
	for _, p := range []model.Phase{model.PhaseQa, model.PhaseEdit} {
		if !cfg.PhaseEnabled(p) {
			continue
		}
		agent := cfg.Agent(p)
		var rt llm.Runtime
		if agent.Provider != "" {
			var err error
			rt, err = runtimes.forAgent(agent)
			if err != nil {
				return nil, err
			}
		}
		if p == model.PhaseQa {
			agents = append(agents, phase.NewQaAgent(rt, profiles[p], agent))
		} else {
			agents = append(agents, phase.NewEditAgent(rt, profiles[p], agent))
		}
	}

	return phase.NewRegistry(agents...), nil
}

func buildOrchestrator(cfg config.Config, stores store.Bundle) (*orchestrator.Orchestrator, error) {
	agents, err := buildAgents(cfg)
	if err != nil {
		return nil, err
	}
	logs := sink.NewCompositeLogSink(
		&sink.RedactingLogSink{Inner: &sink.StoreLogSink{Store: stores.Logs}},
		sink.ConsoleLogSink{},
	)
	progress := sink.NewCompositeProgressSink(
		sink.NewFSProgressSink(cfg.Storage.LogsDir),
		sink.NewConsoleProgressSink(),
	)
	return orchestrator.New(orchestrator.Options{
		Config:   cfg,
		Agents:   agents,
		Stores:   stores,
		Logs:     logs,
		Progress: progress,
	}), nil
}

// syncCatalog mirrors the terminal run state into the sqlite catalog.
// The JSON snapshot is the source of truth; a catalog failure only
// degrades listing.
func syncCatalog(ctx context.Context, cfg config.Config, state *model.RunState) error {
	dbPath := filepath.Join(cfg.Storage.WorkspaceDir, ".rentl", "rentl.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return err
	}
	catalogDB, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = catalogDB.Close() }()

	languages := map[string]bool{}
	for _, rec := range state.Records {
		if rec.Language != "" {
			languages[rec.Language] = true
		}
	}
	var langs []string
	for lang := range languages {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	return db.NewCatalog(catalogDB).Upsert(ctx, model.RunSummary{
		RunID:     state.RunID,
		CreatedAt: state.CreatedAt,
		UpdatedAt: state.UpdatedAt,
		Status:    state.Status,
		Phases:    len(state.Records),
		Languages: langs,
	})
}

func openCatalog(cfg config.Config) (*db.Catalog, func(), error) {
	dbPath := filepath.Join(cfg.Storage.WorkspaceDir, ".rentl", "rentl.db")
	catalogDB, err := db.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	return db.NewCatalog(catalogDB), func() { _ = catalogDB.Close() }, nil
}

func runOutcome(state *model.RunState) error {
	if state.Status == model.RunCompleted {
		return nil
	}
	return fmt.Errorf("run %s finished with status %s", state.RunID, state.Status)
}
