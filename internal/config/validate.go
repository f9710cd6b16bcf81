package config

import (
	"fmt"

	"rentl/internal/errs"
	"rentl/internal/model"
)

var untranslatedPolicies = map[string]bool{"": true, "error": true, "warn": true, "allow": true}

// Validate checks the configuration before any phase starts.
func (c Config) Validate() error {
	if len(c.Phases.Enabled) == 0 {
		return errs.New(errs.CodeConfig, "phases.enabled is empty").
			WithNext("enable at least the ingest phase")
	}
	for _, name := range c.Phases.Enabled {
		if !model.Phase(name).Valid() {
			return errs.Newf(errs.CodeConfig, "unknown phase %q in phases.enabled", name).
				WithNext(fmt.Sprintf("use one of %v", model.PhaseOrder))
		}
	}
	if !c.PhaseEnabled(model.PhaseIngest) {
		return errs.New(errs.CodeConfig, "ingest phase must be enabled").
			WithNext("add ingest to phases.enabled")
	}
	if c.Languages.Source == "" {
		return errs.New(errs.CodeConfig, "languages.source is required")
	}
	for _, p := range c.EnabledPhases() {
		if p.LanguageSpecific() && len(c.Languages.Targets) == 0 {
			return errs.Newf(errs.CodeConfig, "phase %s is enabled but languages.targets is empty", p).
				WithNext("configure languages.targets")
		}
	}
	if !untranslatedPolicies[c.UntranslatedPolicy] {
		return errs.Newf(errs.CodeConfig, "unknown untranslated_policy %q", c.UntranslatedPolicy).
			WithNext(`use one of "error", "warn", "allow"`)
	}
	if c.Storage.WorkspaceDir == "" {
		return errs.New(errs.CodeConfig, "storage.workspace_dir is required")
	}
	if c.Storage.LogsDir == "" {
		return errs.New(errs.CodeConfig, "storage.logs_dir is required")
	}
	return nil
}
