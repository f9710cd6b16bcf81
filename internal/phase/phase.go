// Package phase implements the pipeline's phase agents. Each agent
// turns one phase's typed input into its typed output, fanning out to
// an LLM runtime through the agent pool where the phase calls for it.
package phase

import (
	"context"

	"rentl/internal/export"
	"rentl/internal/model"
	"rentl/internal/pool"
)

// Input is the resolved input for one phase execution. The orchestrator
// fills only the fields the phase consumes.
type Input struct {
	RunID          string
	Language       string
	SourceLanguage string
	StyleGuide     string
	Source         []model.SourceLine
	Summaries      []model.SceneSummary
	Annotations    []model.Annotation
	Translated     []model.TranslatedLine
	Issues         []model.QaIssue
	Params         map[string]any
}

// Output is one phase's typed result. On failure Partial may carry the
// outputs of chunks that did succeed, for diagnostic persistence only.
type Output struct {
	Source      []model.SourceLine
	Summaries   []model.SceneSummary
	Annotations []model.Annotation
	Translated  []model.TranslatedLine
	Issues      []model.QaIssue
	Export      *export.Summary
	Summary     map[string]any
	Partial     any
}

// Agent executes one phase. onMilestone may be nil.
type Agent interface {
	Phase() model.Phase
	Run(ctx context.Context, in Input, onMilestone func(model.Milestone)) (Output, error)
}

// Registry maps phases to their agents.
type Registry map[model.Phase]Agent

// NewRegistry indexes agents by phase.
func NewRegistry(agents ...Agent) Registry {
	reg := make(Registry, len(agents))
	for _, a := range agents {
		reg[a.Phase()] = a
	}
	return reg
}

// poolMilestone converts pool progress into a milestone carrying the
// phase's item counter.
func poolMilestone(metric, unit string, p pool.Progress) model.Milestone {
	var pct float64
	if p.ChunksTotal > 0 {
		pct = float64(p.ChunksCompleted) / float64(p.ChunksTotal) * 100
	}
	return model.Milestone{
		PercentComplete: &pct,
		Metrics: map[string]model.Metric{
			metric: {Value: float64(p.ItemsCompleted), Unit: unit},
		},
	}
}

func emit(onMilestone func(model.Milestone), m model.Milestone) {
	if onMilestone != nil {
		onMilestone(m)
	}
}

// stringParam reads an open phase parameter as a string.
func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// intParam reads an open phase parameter as an int. JSON and YAML
// decoders may deliver numbers as float64 or int.
func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
