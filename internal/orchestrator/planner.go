package orchestrator

import (
	"rentl/internal/config"
	"rentl/internal/errs"
	"rentl/internal/model"
)

// Plan is the ordered list of (phase, language) executions for one run.
// Phases appear in canonical order; language-specific phases expand to
// one item per target.
type Plan struct {
	Items []model.PhaseKey
}

// BuildPlan expands the enabled phases against the configured targets.
func BuildPlan(cfg config.Config) (Plan, error) {
	enabled := cfg.EnabledPhases()
	if len(enabled) == 0 {
		return Plan{}, errs.New(errs.CodeConfig, "no phases are enabled").
			WithNext("list at least one phase under phases.enabled")
	}
	if !cfg.PhaseEnabled(model.PhaseIngest) {
		return Plan{}, errs.New(errs.CodeConfig, "the ingest phase cannot be disabled").
			WithNext("add ingest to phases.enabled")
	}

	var plan Plan
	for _, p := range enabled {
		if !p.LanguageSpecific() {
			plan.Items = append(plan.Items, model.PhaseKey{Phase: p})
			continue
		}
		if len(cfg.Languages.Targets) == 0 {
			return Plan{}, errs.Newf(errs.CodeConfig, "phase %s is enabled but no target languages are configured", p).
				WithNext("list targets under languages.targets")
		}
		for _, lang := range cfg.Languages.Targets {
			plan.Items = append(plan.Items, model.PhaseKey{Phase: p, Language: lang})
		}
	}
	return plan, nil
}

// hardDependencies returns the upstream keys that must have completed
// before key may run, restricted to enabled phases. Soft inputs (scene
// summaries, annotations, QA issues) flow through when present but do
// not gate execution.
func hardDependencies(key model.PhaseKey, cfg config.Config) []model.PhaseKey {
	langKey := func(p model.Phase) model.PhaseKey {
		if p.LanguageSpecific() {
			return model.PhaseKey{Phase: p, Language: key.Language}
		}
		return model.PhaseKey{Phase: p}
	}

	var deps []model.PhaseKey
	switch key.Phase {
	case model.PhaseIngest:
	case model.PhaseContext, model.PhasePretranslate, model.PhaseTranslate:
		deps = append(deps, langKey(model.PhaseIngest))
	case model.PhaseQa:
		deps = append(deps, langKey(model.PhaseTranslate))
	case model.PhaseEdit:
		deps = append(deps, langKey(model.PhaseTranslate))
		if cfg.PhaseEnabled(model.PhaseQa) {
			deps = append(deps, langKey(model.PhaseQa))
		}
	case model.PhaseExport:
		if cfg.PhaseEnabled(model.PhaseEdit) {
			deps = append(deps, langKey(model.PhaseEdit))
		} else {
			deps = append(deps, langKey(model.PhaseTranslate))
		}
	}
	return deps
}

// softDependencies returns the optional upstream keys whose outputs the
// phase consumes when available. They participate in dependency lineage
// and staleness but never block execution.
func softDependencies(key model.PhaseKey, cfg config.Config) []model.PhaseKey {
	var deps []model.PhaseKey
	add := func(p model.Phase) {
		if cfg.PhaseEnabled(p) {
			deps = append(deps, model.PhaseKey{Phase: p})
		}
	}
	switch key.Phase {
	case model.PhasePretranslate:
		add(model.PhaseContext)
	case model.PhaseTranslate:
		add(model.PhaseContext)
		add(model.PhasePretranslate)
	}
	return deps
}

// allDependencies is the union of hard and soft dependencies for key.
func allDependencies(key model.PhaseKey, cfg config.Config) []model.PhaseKey {
	return append(hardDependencies(key, cfg), softDependencies(key, cfg)...)
}
