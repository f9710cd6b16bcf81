package phase

import (
	"context"

	"rentl/internal/config"
	"rentl/internal/llm"
	"rentl/internal/model"
	"rentl/internal/pool"
	"rentl/internal/profile"
)

// PretranslateAgent annotates source lines with translation hazards
// before any translation happens.
type PretranslateAgent struct {
	runtime llm.Runtime
	profile profile.Resolved
	cfg     config.AgentConfig
}

// NewPretranslateAgent builds the annotation agent.
func NewPretranslateAgent(runtime llm.Runtime, prof profile.Resolved, cfg config.AgentConfig) *PretranslateAgent {
	return &PretranslateAgent{runtime: runtime, profile: prof, cfg: cfg}
}

func (a *PretranslateAgent) Phase() model.Phase { return model.PhasePretranslate }

type annotationWire struct {
	Category    string `json:"category"`
	Explanation string `json:"explanation"`
	Hint        string `json:"hint,omitempty"`
}

// annotatedLine pairs a line with its annotations. One entry per input
// line keeps the pool's ID alignment meaningful even when most lines
// need no annotation.
type annotatedLine struct {
	LineID      string           `json:"line_id"`
	Annotations []annotationWire `json:"annotations"`
}

type pretranslateRequest struct {
	Scenes []model.SceneSummary `json:"scene_context,omitempty"`
	Lines  []sceneWireLine      `json:"lines"`
}

type pretranslateResponse struct {
	Lines []annotatedLine `json:"lines"`
}

func (a *PretranslateAgent) Run(ctx context.Context, in Input, onMilestone func(model.Milestone)) (Output, error) {
	if len(in.Source) == 0 {
		return Output{Summary: map[string]any{"lines_annotated": 0, "annotations_total": 0}}, nil
	}

	summariesByScene := indexSummaries(in.Summaries)
	caller := newCaller(a.runtime, a.profile, a.cfg, in)

	worker := pool.Worker[model.SourceLine, annotatedLine]{
		InputID:  func(l model.SourceLine) string { return l.LineID },
		OutputID: func(l annotatedLine) string { return l.LineID },
		Call: func(ctx context.Context, chunk []model.SourceLine, feedback string) ([]annotatedLine, error) {
			req := pretranslateRequest{Scenes: chunkSummaries(chunk, summariesByScene)}
			for _, line := range chunk {
				req.Lines = append(req.Lines, sceneWireLine{LineID: line.LineID, Speaker: line.Speaker, Text: line.Text})
			}
			var resp pretranslateResponse
			if err := caller.call(ctx, req, feedback, &resp); err != nil {
				return nil, err
			}
			return resp.Lines, nil
		},
	}

	res := pool.Run(ctx,
		pool.Config{MaxConcurrentChunks: a.cfg.MaxConcurrentChunks, MaxChunkRetries: a.cfg.MaxChunkRetries},
		pool.Partition(in.Source, a.cfg.ChunkSize),
		worker,
		func(p pool.Progress) { emit(onMilestone, poolMilestone("lines_annotated", "lines", p)) },
	)
	if res.Err != nil {
		return Output{Partial: res.Partial}, res.Err
	}

	var annotations []model.Annotation
	linesAnnotated := 0
	for _, line := range res.Outputs {
		if len(line.Annotations) > 0 {
			linesAnnotated++
		}
		for _, a := range line.Annotations {
			annotations = append(annotations, model.Annotation{
				LineID:      line.LineID,
				Category:    a.Category,
				Explanation: a.Explanation,
				Hint:        a.Hint,
			})
		}
	}

	return Output{
		Annotations: annotations,
		Summary: map[string]any{
			"lines_annotated":   linesAnnotated,
			"annotations_total": len(annotations),
		},
	}, nil
}

func indexSummaries(summaries []model.SceneSummary) map[string]model.SceneSummary {
	byScene := make(map[string]model.SceneSummary, len(summaries))
	for _, s := range summaries {
		byScene[s.SceneID] = s
	}
	return byScene
}

// chunkSummaries returns the scene summaries relevant to a chunk, in
// first-appearance order.
func chunkSummaries(chunk []model.SourceLine, byScene map[string]model.SceneSummary) []model.SceneSummary {
	seen := make(map[string]bool)
	var out []model.SceneSummary
	for _, line := range chunk {
		sceneID := line.SceneID
		if sceneID == "" {
			sceneID = sceneFallbackID
		}
		if seen[sceneID] {
			continue
		}
		seen[sceneID] = true
		if s, ok := byScene[sceneID]; ok {
			out = append(out, s)
		}
	}
	return out
}
