package phase

import (
	"context"

	"rentl/internal/config"
	"rentl/internal/llm"
	"rentl/internal/model"
	"rentl/internal/pool"
	"rentl/internal/profile"
)

// sceneFallbackID buckets lines that carry no scene identifier.
const sceneFallbackID = "scene_0"

// ContextAgent produces per-scene summaries. Chunking is per scene: the
// default chunk size of one keeps each request focused on one scene.
type ContextAgent struct {
	runtime llm.Runtime
	profile profile.Resolved
	cfg     config.AgentConfig
}

// NewContextAgent builds the scene-summary agent.
func NewContextAgent(runtime llm.Runtime, prof profile.Resolved, cfg config.AgentConfig) *ContextAgent {
	return &ContextAgent{runtime: runtime, profile: prof, cfg: cfg}
}

func (a *ContextAgent) Phase() model.Phase { return model.PhaseContext }

// sceneGroup is one scene's lines in script order.
type sceneGroup struct {
	SceneID string          `json:"scene_id"`
	Lines   []sceneWireLine `json:"lines"`
}

type sceneWireLine struct {
	LineID  string `json:"line_id"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

type contextRequest struct {
	Scenes []sceneGroup `json:"scenes"`
}

type contextResponse struct {
	Scenes []model.SceneSummary `json:"scenes"`
}

func (a *ContextAgent) Run(ctx context.Context, in Input, onMilestone func(model.Milestone)) (Output, error) {
	groups := groupScenes(in.Source)
	if len(groups) == 0 {
		return Output{Summary: map[string]any{"scenes_summarized": 0, "characters_identified": 0}}, nil
	}

	caller := newCaller(a.runtime, a.profile, a.cfg, in)
	worker := pool.Worker[sceneGroup, model.SceneSummary]{
		InputID:  func(g sceneGroup) string { return g.SceneID },
		OutputID: func(s model.SceneSummary) string { return s.SceneID },
		Call: func(ctx context.Context, chunk []sceneGroup, feedback string) ([]model.SceneSummary, error) {
			var resp contextResponse
			if err := caller.call(ctx, contextRequest{Scenes: chunk}, feedback, &resp); err != nil {
				return nil, err
			}
			return resp.Scenes, nil
		},
	}

	res := pool.Run(ctx,
		pool.Config{MaxConcurrentChunks: a.cfg.MaxConcurrentChunks, MaxChunkRetries: a.cfg.MaxChunkRetries},
		pool.Partition(groups, a.cfg.ChunkSize),
		worker,
		func(p pool.Progress) { emit(onMilestone, poolMilestone("scenes_summarized", "scenes", p)) },
	)
	if res.Err != nil {
		return Output{Partial: res.Partial}, res.Err
	}

	characters := make(map[string]bool)
	for _, s := range res.Outputs {
		for _, c := range s.Characters {
			characters[c] = true
		}
	}

	return Output{
		Summaries: res.Outputs,
		Summary: map[string]any{
			"scenes_summarized":     len(res.Outputs),
			"characters_identified": len(characters),
		},
	}, nil
}

// groupScenes buckets source lines by scene, preserving the order in
// which scenes first appear.
func groupScenes(lines []model.SourceLine) []sceneGroup {
	index := make(map[string]int)
	var groups []sceneGroup
	for _, line := range lines {
		sceneID := line.SceneID
		if sceneID == "" {
			sceneID = sceneFallbackID
		}
		i, ok := index[sceneID]
		if !ok {
			i = len(groups)
			index[sceneID] = i
			groups = append(groups, sceneGroup{SceneID: sceneID})
		}
		groups[i].Lines = append(groups[i].Lines, sceneWireLine{
			LineID:  line.LineID,
			Speaker: line.Speaker,
			Text:    line.Text,
		})
	}
	return groups
}
