package phase

import (
	"context"

	"rentl/internal/config"
	"rentl/internal/llm"
	"rentl/internal/model"
	"rentl/internal/pool"
	"rentl/internal/profile"
)

// EditAgent revises translated lines to resolve QA issues. Only lines
// that carry issues are sent to the LLM; with no runtime or no issues
// it is an identity pass.
type EditAgent struct {
	runtime llm.Runtime
	profile profile.Resolved
	cfg     config.AgentConfig
}

// NewEditAgent builds the revision agent. runtime may be nil.
func NewEditAgent(runtime llm.Runtime, prof profile.Resolved, cfg config.AgentConfig) *EditAgent {
	return &EditAgent{runtime: runtime, profile: prof, cfg: cfg}
}

func (a *EditAgent) Phase() model.Phase { return model.PhaseEdit }

type editWireLine struct {
	LineID     string        `json:"line_id"`
	SourceText string        `json:"source_text"`
	Text       string        `json:"text"`
	Issues     []qaIssueWire `json:"issues"`
}

type editRequest struct {
	TargetLanguage string         `json:"target_language"`
	Lines          []editWireLine `json:"lines"`
}

type editResponse struct {
	Lines []translatedWireLine `json:"lines"`
}

func (a *EditAgent) Run(ctx context.Context, in Input, onMilestone func(model.Milestone)) (Output, error) {
	issuesByLine := make(map[string][]qaIssueWire)
	for _, issue := range in.Issues {
		issuesByLine[issue.LineID] = append(issuesByLine[issue.LineID], qaIssueWire{
			Category:   issue.Category,
			Severity:   issue.Severity,
			Message:    issue.Message,
			Suggestion: issue.Suggestion,
		})
	}

	var flagged []model.TranslatedLine
	for _, line := range in.Translated {
		if len(issuesByLine[line.LineID]) > 0 {
			flagged = append(flagged, line)
		}
	}

	identity := func() (Output, error) {
		done := 100.0
		emit(onMilestone, model.Milestone{PercentComplete: &done})
		return Output{
			Translated: in.Translated,
			Summary:    map[string]any{"lines_edited": 0, "issues_resolved": 0},
		}, nil
	}
	if a.runtime == nil || len(flagged) == 0 {
		return identity()
	}

	caller := newCaller(a.runtime, a.profile, a.cfg, in)
	worker := pool.Worker[model.TranslatedLine, translatedWireLine]{
		InputID:  func(l model.TranslatedLine) string { return l.LineID },
		OutputID: func(l translatedWireLine) string { return l.LineID },
		Call: func(ctx context.Context, chunk []model.TranslatedLine, feedback string) ([]translatedWireLine, error) {
			req := editRequest{TargetLanguage: in.Language}
			for _, line := range chunk {
				req.Lines = append(req.Lines, editWireLine{
					LineID:     line.LineID,
					SourceText: line.SourceText,
					Text:       line.Text,
					Issues:     issuesByLine[line.LineID],
				})
			}
			var resp editResponse
			if err := caller.call(ctx, req, feedback, &resp); err != nil {
				return nil, err
			}
			return resp.Lines, nil
		},
	}

	res := pool.Run(ctx,
		pool.Config{MaxConcurrentChunks: a.cfg.MaxConcurrentChunks, MaxChunkRetries: a.cfg.MaxChunkRetries},
		pool.Partition(flagged, a.cfg.ChunkSize),
		worker,
		func(p pool.Progress) { emit(onMilestone, poolMilestone("lines_edited", "lines", p)) },
	)
	if res.Err != nil {
		return Output{Partial: res.Partial}, res.Err
	}

	revisedByID := make(map[string]string, len(res.Outputs))
	for _, wire := range res.Outputs {
		revisedByID[wire.LineID] = wire.Text
	}

	edited := make([]model.TranslatedLine, len(in.Translated))
	linesEdited := 0
	issuesResolved := 0
	for i, line := range in.Translated {
		edited[i] = line
		if revised, ok := revisedByID[line.LineID]; ok {
			if revised != line.Text {
				linesEdited++
				issuesResolved += len(issuesByLine[line.LineID])
			}
			edited[i].Text = revised
		}
	}

	return Output{
		Translated: edited,
		Summary: map[string]any{
			"lines_edited":    linesEdited,
			"issues_resolved": issuesResolved,
		},
	}, nil
}
