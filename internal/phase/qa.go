package phase

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"rentl/internal/config"
	"rentl/internal/ids"
	"rentl/internal/llm"
	"rentl/internal/model"
	"rentl/internal/pool"
	"rentl/internal/profile"
)

// QaAgent checks translations. Deterministic checks always run; the
// LLM review runs on top when a runtime is attached and not disabled
// via the llm_review parameter.
type QaAgent struct {
	runtime llm.Runtime
	profile profile.Resolved
	cfg     config.AgentConfig
}

// NewQaAgent builds the review agent. runtime may be nil for a purely
// deterministic reviewer.
func NewQaAgent(runtime llm.Runtime, prof profile.Resolved, cfg config.AgentConfig) *QaAgent {
	return &QaAgent{runtime: runtime, profile: prof, cfg: cfg}
}

func (a *QaAgent) Phase() model.Phase { return model.PhaseQa }

type qaWireLine struct {
	LineID     string `json:"line_id"`
	SourceText string `json:"source_text"`
	Text       string `json:"text"`
}

type qaIssueWire struct {
	Category   string `json:"category"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

type qaReviewedLine struct {
	LineID string        `json:"line_id"`
	Issues []qaIssueWire `json:"issues"`
}

type qaRequest struct {
	TargetLanguage string       `json:"target_language"`
	Lines          []qaWireLine `json:"lines"`
}

type qaResponse struct {
	Lines []qaReviewedLine `json:"lines"`
}

// placeholderPattern matches the engine placeholders that must survive
// translation verbatim.
var placeholderPattern = regexp.MustCompile(`\{\{?[a-zA-Z0-9_.]+\}?\}|%[sdvf]|\[[a-z_]+\]`)

func (a *QaAgent) Run(ctx context.Context, in Input, onMilestone func(model.Milestone)) (Output, error) {
	issues := a.deterministicIssues(in)

	if a.runtime != nil && boolParam(in.Params, "llm_review", true) && len(in.Translated) > 0 {
		llmIssues, partial, err := a.llmIssues(ctx, in, onMilestone)
		if err != nil {
			return Output{Partial: partial}, err
		}
		issues = append(issues, llmIssues...)
	}

	sort.SliceStable(issues, func(i, j int) bool {
		return ids.Ordinal(issues[i].LineID) < ids.Ordinal(issues[j].LineID)
	})
	for i := range issues {
		issues[i].IssueID = i + 1
	}

	summary := map[string]any{
		"lines_checked": len(in.Translated),
		"issues_total":  len(issues),
	}
	for _, severity := range []string{model.SeverityMinor, model.SeverityMajor, model.SeverityCritical} {
		count := 0
		for _, issue := range issues {
			if issue.Severity == severity {
				count++
			}
		}
		summary["issues_"+severity] = count
	}

	done := 100.0
	emit(onMilestone, model.Milestone{
		PercentComplete: &done,
		Metrics: map[string]model.Metric{
			"issues_total": {Value: float64(len(issues)), Unit: "issues"},
		},
	})

	return Output{Issues: issues, Summary: summary}, nil
}

// deterministicIssues runs the configured rule checks. Severities for
// each rule can be overridden through the severity parameter map.
func (a *QaAgent) deterministicIssues(in Input) []model.QaIssue {
	severityOf := func(rule, fallback string) string {
		if overrides, ok := in.Params["severity"].(map[string]any); ok {
			if s, ok := overrides[rule].(string); ok {
				return s
			}
		}
		return fallback
	}

	var issues []model.QaIssue
	maxLen, hasMaxLen := intParam(in.Params, "max_line_length")
	for _, line := range in.Translated {
		if hasMaxLen && len([]rune(line.Text)) > maxLen {
			issues = append(issues, model.QaIssue{
				LineID:   line.LineID,
				Category: model.IssueFormatting,
				Severity: severityOf("max_line_length", model.SeverityMinor),
				Message:  fmt.Sprintf("text is %d characters, limit is %d", len([]rune(line.Text)), maxLen),
			})
		}
		if line.Text == "" {
			issues = append(issues, model.QaIssue{
				LineID:   line.LineID,
				Category: model.IssueOmission,
				Severity: severityOf("empty_translation", model.SeverityCritical),
				Message:  "translation is empty",
			})
			continue
		}
		if missing := missingPlaceholders(line.SourceText, line.Text); len(missing) > 0 {
			issues = append(issues, model.QaIssue{
				LineID:   line.LineID,
				Category: model.IssueConsistency,
				Severity: severityOf("placeholder", model.SeverityMajor),
				Message:  fmt.Sprintf("placeholders missing from translation: %v", missing),
			})
		}
	}
	return issues
}

// missingPlaceholders lists source placeholders absent from the
// translated text.
func missingPlaceholders(source, translated string) []string {
	want := placeholderPattern.FindAllString(source, -1)
	if len(want) == 0 {
		return nil
	}
	have := make(map[string]int)
	for _, p := range placeholderPattern.FindAllString(translated, -1) {
		have[p]++
	}
	var missing []string
	for _, p := range want {
		if have[p] == 0 {
			missing = append(missing, p)
			continue
		}
		have[p]--
	}
	return missing
}

func (a *QaAgent) llmIssues(ctx context.Context, in Input, onMilestone func(model.Milestone)) ([]model.QaIssue, any, error) {
	caller := newCaller(a.runtime, a.profile, a.cfg, in)

	worker := pool.Worker[model.TranslatedLine, qaReviewedLine]{
		InputID:  func(l model.TranslatedLine) string { return l.LineID },
		OutputID: func(l qaReviewedLine) string { return l.LineID },
		Call: func(ctx context.Context, chunk []model.TranslatedLine, feedback string) ([]qaReviewedLine, error) {
			req := qaRequest{TargetLanguage: in.Language}
			for _, line := range chunk {
				req.Lines = append(req.Lines, qaWireLine{LineID: line.LineID, SourceText: line.SourceText, Text: line.Text})
			}
			var resp qaResponse
			if err := caller.call(ctx, req, feedback, &resp); err != nil {
				return nil, err
			}
			return resp.Lines, nil
		},
	}

	res := pool.Run(ctx,
		pool.Config{MaxConcurrentChunks: a.cfg.MaxConcurrentChunks, MaxChunkRetries: a.cfg.MaxChunkRetries},
		pool.Partition(in.Translated, a.cfg.ChunkSize),
		worker,
		func(p pool.Progress) { emit(onMilestone, poolMilestone("lines_checked", "lines", p)) },
	)
	if res.Err != nil {
		return nil, res.Partial, res.Err
	}

	var issues []model.QaIssue
	for _, line := range res.Outputs {
		for _, wire := range line.Issues {
			issues = append(issues, model.QaIssue{
				LineID:     line.LineID,
				Category:   wire.Category,
				Severity:   wire.Severity,
				Message:    wire.Message,
				Suggestion: wire.Suggestion,
			})
		}
	}
	return issues, nil, nil
}

// boolParam reads an open phase parameter as a bool with a default.
func boolParam(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}
