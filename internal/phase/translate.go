package phase

import (
	"context"
	"sync/atomic"

	"rentl/internal/config"
	"rentl/internal/llm"
	"rentl/internal/model"
	"rentl/internal/pool"
	"rentl/internal/profile"
)

// TranslateAgent translates source lines into one target language,
// carrying scene summaries and pretranslation annotations into each
// request.
type TranslateAgent struct {
	runtime llm.Runtime
	profile profile.Resolved
	cfg     config.AgentConfig
}

// NewTranslateAgent builds the translation agent.
func NewTranslateAgent(runtime llm.Runtime, prof profile.Resolved, cfg config.AgentConfig) *TranslateAgent {
	return &TranslateAgent{runtime: runtime, profile: prof, cfg: cfg}
}

func (a *TranslateAgent) Phase() model.Phase { return model.PhaseTranslate }

type translateWireLine struct {
	LineID      string           `json:"line_id"`
	Speaker     string           `json:"speaker,omitempty"`
	Text        string           `json:"text"`
	Annotations []annotationWire `json:"annotations,omitempty"`
}

type translateRequest struct {
	TargetLanguage string               `json:"target_language"`
	Scenes         []model.SceneSummary `json:"scene_context,omitempty"`
	Lines          []translateWireLine  `json:"lines"`
}

type translatedWireLine struct {
	LineID string `json:"line_id"`
	Text   string `json:"text"`
}

type translateResponse struct {
	Lines []translatedWireLine `json:"lines"`
}

func (a *TranslateAgent) Run(ctx context.Context, in Input, onMilestone func(model.Milestone)) (Output, error) {
	if len(in.Source) == 0 {
		return Output{Summary: map[string]any{"lines_translated": 0, "retried_chunks": 0}}, nil
	}

	summariesByScene := indexSummaries(in.Summaries)
	annotationsByLine := make(map[string][]annotationWire)
	for _, note := range in.Annotations {
		annotationsByLine[note.LineID] = append(annotationsByLine[note.LineID], annotationWire{
			Category:    note.Category,
			Explanation: note.Explanation,
			Hint:        note.Hint,
		})
	}

	sourceByID := make(map[string]model.SourceLine, len(in.Source))
	for _, line := range in.Source {
		sourceByID[line.LineID] = line
	}

	caller := newCaller(a.runtime, a.profile, a.cfg, in)
	var retriedChunks atomic.Int64

	worker := pool.Worker[model.SourceLine, model.TranslatedLine]{
		InputID:  func(l model.SourceLine) string { return l.LineID },
		OutputID: func(l model.TranslatedLine) string { return l.LineID },
		Call: func(ctx context.Context, chunk []model.SourceLine, feedback string) ([]model.TranslatedLine, error) {
			if feedback != "" {
				retriedChunks.Add(1)
			}
			req := translateRequest{
				TargetLanguage: in.Language,
				Scenes:         chunkSummaries(chunk, summariesByScene),
			}
			for _, line := range chunk {
				req.Lines = append(req.Lines, translateWireLine{
					LineID:      line.LineID,
					Speaker:     line.Speaker,
					Text:        line.Text,
					Annotations: annotationsByLine[line.LineID],
				})
			}
			var resp translateResponse
			if err := caller.call(ctx, req, feedback, &resp); err != nil {
				return nil, err
			}
			out := make([]model.TranslatedLine, 0, len(resp.Lines))
			for _, wire := range resp.Lines {
				src := sourceByID[wire.LineID]
				out = append(out, model.TranslatedLine{
					LineID:        wire.LineID,
					SceneID:       src.SceneID,
					RouteID:       src.RouteID,
					Speaker:       src.Speaker,
					SourceText:    src.Text,
					Text:          wire.Text,
					SourceColumns: src.SourceColumns,
					Metadata:      src.Metadata,
				})
			}
			return out, nil
		},
	}

	res := pool.Run(ctx,
		pool.Config{MaxConcurrentChunks: a.cfg.MaxConcurrentChunks, MaxChunkRetries: a.cfg.MaxChunkRetries},
		pool.Partition(in.Source, a.cfg.ChunkSize),
		worker,
		func(p pool.Progress) { emit(onMilestone, poolMilestone("lines_translated", "lines", p)) },
	)
	if res.Err != nil {
		return Output{Partial: res.Partial}, res.Err
	}

	return Output{
		Translated: res.Outputs,
		Summary: map[string]any{
			"lines_translated": len(res.Outputs),
			"retried_chunks":   int(retriedChunks.Load()),
		},
	}, nil
}
