package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentl/internal/config"
	"rentl/internal/errs"
	"rentl/internal/export"
	"rentl/internal/ingest"
	"rentl/internal/llm"
	"rentl/internal/model"
	"rentl/internal/phase"
	"rentl/internal/sink"
	"rentl/internal/store"
)

// scriptRuntime answers every structured call deterministically based
// on the schema it is asked to satisfy: scene summaries are stubbed,
// annotations are empty, translations and edits are identity.
type scriptRuntime struct {
	mu        sync.Mutex
	inFlight  int
	peak      int
	delay     time.Duration
	failLangs map[string]bool
}

type wireLine struct {
	LineID string `json:"line_id"`
	Text   string `json:"text"`
}

func (r *scriptRuntime) RunPrompt(ctx context.Context, prompt llm.Prompt, schema *llm.Schema, _ llm.Settings) (json.RawMessage, error) {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.peak {
		r.peak = r.inFlight
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, errs.Wrap(ctx.Err(), errs.CodeCancelled, "call aborted")
		}
	}

	var req struct {
		TargetLanguage string `json:"target_language"`
		Scenes         []struct {
			SceneID string `json:"scene_id"`
		} `json:"scenes"`
		Lines []wireLine `json:"lines"`
	}
	if err := json.Unmarshal([]byte(prompt.User), &req); err != nil {
		return nil, err
	}
	if r.failLangs[req.TargetLanguage] {
		return nil, errs.New(errs.CodeConnection, "backend rejected the request")
	}

	var resp any
	switch schema.ID {
	case "context.summaries.v1":
		scenes := make([]model.SceneSummary, 0, len(req.Scenes))
		for _, s := range req.Scenes {
			scenes = append(scenes, model.SceneSummary{SceneID: s.SceneID, Summary: "summary"})
		}
		resp = map[string]any{"scenes": scenes}
	case "pretranslate.annotations.v1":
		lines := make([]map[string]any, 0, len(req.Lines))
		for _, l := range req.Lines {
			lines = append(lines, map[string]any{"line_id": l.LineID, "annotations": []any{}})
		}
		resp = map[string]any{"lines": lines}
	default: // translate.lines.v1, edit.lines.v1
		lines := make([]wireLine, 0, len(req.Lines))
		for _, l := range req.Lines {
			lines = append(lines, wireLine{LineID: l.LineID, Text: l.Text})
		}
		resp = map[string]any{"lines": lines}
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return schema.Normalize(body)
}

type harness struct {
	cfg      config.Config
	stores   store.Bundle
	progress *sink.MemoryProgressSink
	orch     *Orchestrator
}

func newHarness(t *testing.T, dir string, runtime llm.Runtime, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Config{
		Phases: config.PhasesConfig{
			Enabled: []string{"ingest", "translate", "export"},
			Parameters: map[string]map[string]any{
				"ingest": {"input_path": filepath.Join(dir, "script.jsonl")},
			},
		},
		Languages:          config.Languages{Source: "en", Targets: []string{"fr"}},
		Storage:            config.Storage{WorkspaceDir: dir, LogsDir: filepath.Join(dir, "logs")},
		UntranslatedPolicy: export.PolicyWarn,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	stores := store.Bundle{
		RunStates: store.NewRunStateStore(dir),
		Artifacts: store.NewArtifactStore(dir),
		Logs:      store.NewLogStore(cfg.Storage.LogsDir),
	}
	progress := sink.NewMemoryProgressSink()

	profiles := phase.DefaultProfiles()
	agents := phase.NewRegistry(
		phase.NewIngestAgent(ingest.NewFileReader()),
		phase.NewContextAgent(runtime, profiles[model.PhaseContext], cfg.Agent(model.PhaseContext)),
		phase.NewPretranslateAgent(runtime, profiles[model.PhasePretranslate], cfg.Agent(model.PhasePretranslate)),
		phase.NewTranslateAgent(runtime, profiles[model.PhaseTranslate], cfg.Agent(model.PhaseTranslate)),
		phase.NewQaAgent(nil, profiles[model.PhaseQa], cfg.Agent(model.PhaseQa)),
		phase.NewEditAgent(nil, profiles[model.PhaseEdit], cfg.Agent(model.PhaseEdit)),
		phase.NewExportAgent(export.NewFileWriter(), dir, cfg.UntranslatedPolicy),
	)

	orch := New(Options{
		Config:   cfg,
		Agents:   agents,
		Stores:   stores,
		Logs:     &sink.StoreLogSink{Store: stores.Logs},
		Progress: progress,
	})
	return &harness{cfg: cfg, stores: stores, progress: progress, orch: orch}
}

func writeScript(t *testing.T, dir string, texts ...string) {
	t.Helper()
	var body []byte
	for i, text := range texts {
		line, err := json.Marshal(model.SourceLine{
			LineID:  "a_" + string(rune('0'+i+1)),
			SceneID: "scene_1",
			Text:    text,
		})
		require.NoError(t, err)
		body = append(body, line...)
		body = append(body, '\n')
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.jsonl"), body, 0o644))
}

// lifecycleKinds filters out phase_progress milestones.
func lifecycleKinds(updates []model.ProgressUpdate) []string {
	var kinds []string
	for _, u := range updates {
		if u.Kind == model.EventPhaseProgress {
			continue
		}
		kinds = append(kinds, u.Kind)
	}
	return kinds
}

func countKind(kinds []string, kind string) int {
	n := 0
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func TestRunIdentityPipeline(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "one", "two", "three")
	h := newHarness(t, dir, &scriptRuntime{}, nil)

	state, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, state.Status)
	require.Len(t, state.Records, 3)
	for _, rec := range state.Records {
		assert.Equal(t, model.PhaseCompleted, rec.Status)
		assert.Equal(t, 1, rec.Revision)
		require.Len(t, rec.ArtifactRefs, 1)
	}

	kinds := lifecycleKinds(h.progress.Updates())
	assert.Equal(t, 1, countKind(kinds, model.EventRunStarted))
	assert.Equal(t, 1, countKind(kinds, model.EventRunCompleted))
	assert.Equal(t, 3, countKind(kinds, model.EventPhaseStarted))
	assert.Equal(t, 3, countKind(kinds, model.EventPhaseCompleted))
	assert.Len(t, kinds, 8)

	// Translate output is identity over the source.
	translateRec := state.Records[1]
	body, err := h.stores.Artifacts.Load(context.Background(), state.RunID, translateRec.ArtifactRefs[0])
	require.NoError(t, err)
	lines, err := store.DecodeJSONL[model.TranslatedLine](body)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Equal(t, line.SourceText, line.Text)
	}

	assert.FileExists(t, filepath.Join(dir, "export", "fr.jsonl"))
}

func TestRunQaFlagsLongLines(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "hi", "world", "no")
	h := newHarness(t, dir, &scriptRuntime{}, func(cfg *config.Config) {
		cfg.Phases.Enabled = []string{"ingest", "translate", "qa", "edit", "export"}
		cfg.Phases.Parameters["qa"] = map[string]any{"max_line_length": 3}
	})

	state, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, state.Status)

	var qaRec, exportRec *model.PhaseRunRecord
	for i := range state.Records {
		switch state.Records[i].Phase {
		case model.PhaseQa:
			qaRec = &state.Records[i]
		case model.PhaseExport:
			exportRec = &state.Records[i]
		}
	}
	require.NotNil(t, qaRec)
	assert.Equal(t, 1, qaRec.Summary["issues_total"])

	body, err := h.stores.Artifacts.Load(context.Background(), state.RunID, qaRec.ArtifactRefs[0])
	require.NoError(t, err)
	issues, err := store.DecodeJSONL[model.QaIssue](body)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "a_2", issues[0].LineID)
	assert.Equal(t, model.IssueFormatting, issues[0].Category)
	assert.Equal(t, model.SeverityMinor, issues[0].Severity)

	require.NotNil(t, exportRec)
	assert.Equal(t, 0, exportRec.Summary["untranslated_records"])
}

func TestResumeUnchangedIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "one", "two")
	h := newHarness(t, dir, &scriptRuntime{}, nil)

	first, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.RunCompleted, first.Status)
	firstArtifacts, err := h.stores.Artifacts.List(context.Background(), first.RunID)
	require.NoError(t, err)

	h2 := newHarness(t, dir, &scriptRuntime{}, nil)
	second, err := h2.orch.Resume(context.Background(), first.RunID)
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, second.Status)
	assert.Equal(t, len(first.Records), len(second.Records), "no new phase records")
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt) || second.UpdatedAt.Equal(first.UpdatedAt))

	kinds := lifecycleKinds(h2.progress.Updates())
	assert.Equal(t, []string{model.EventRunStarted, model.EventRunCompleted}, kinds)

	secondArtifacts, err := h.stores.Artifacts.List(context.Background(), first.RunID)
	require.NoError(t, err)
	assert.Equal(t, firstArtifacts, secondArtifacts, "artifacts unchanged")
}

func TestResumeAfterConfigChangeInvalidates(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "one", "two")
	h := newHarness(t, dir, &scriptRuntime{}, func(cfg *config.Config) {
		cfg.Phases.Enabled = []string{"ingest", "translate", "qa", "edit", "export"}
	})

	first, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.RunCompleted, first.Status)

	h2 := newHarness(t, dir, &scriptRuntime{}, func(cfg *config.Config) {
		cfg.Phases.Enabled = []string{"ingest", "translate", "qa", "edit", "export"}
		cfg.Agents = map[string]config.AgentConfig{"translate": {ChunkSize: 2}}
	})
	second, err := h2.orch.Resume(context.Background(), first.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, second.Status)

	key := model.PhaseKey{Phase: model.PhaseTranslate, Language: "fr"}
	latest := second.LatestCompleted(key)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.Revision)
	for _, downstream := range []model.Phase{model.PhaseQa, model.PhaseEdit, model.PhaseExport} {
		rec := second.LatestCompleted(model.PhaseKey{Phase: downstream, Language: "fr"})
		require.NotNil(t, rec, "%s reran", downstream)
		assert.Equal(t, 2, rec.Revision, "%s follows with a new revision", downstream)
	}

	// Prior records stay visible, flipped stale only.
	staleCount := 0
	for _, rec := range second.Records {
		if rec.Revision == 1 && rec.Stale {
			staleCount++
			assert.Equal(t, model.PhaseCompleted, rec.Status)
		}
	}
	assert.Equal(t, 4, staleCount, "translate, qa, edit, export revision 1 are stale")

	// Ingest was untouched.
	ingestRec := second.LatestCompleted(model.PhaseKey{Phase: model.PhaseIngest})
	require.NotNil(t, ingestRec)
	assert.Equal(t, 1, ingestRec.Revision)

	kinds := lifecycleKinds(h2.progress.Updates())
	assert.Equal(t, 4, countKind(kinds, model.EventPhaseInvalidated))
}

func TestRunBoundedPoolConcurrency(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "l1", "l2", "l3", "l4", "l5", "l6", "l7")
	rt := &scriptRuntime{delay: 10 * time.Millisecond}
	h := newHarness(t, dir, rt, func(cfg *config.Config) {
		cfg.Agents = map[string]config.AgentConfig{
			"translate": {ChunkSize: 1, MaxConcurrentChunks: 2},
		}
	})

	state, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, state.Status)
	assert.LessOrEqual(t, rt.peak, 2)

	translateRec := state.LatestCompleted(model.PhaseKey{Phase: model.PhaseTranslate, Language: "fr"})
	require.NotNil(t, translateRec)
	assert.Equal(t, 7, translateRec.Summary["lines_translated"])
}

func TestRunDuplicateLineIDFailsIngest(t *testing.T) {
	dir := t.TempDir()
	body := `{"line_id":"a_1","text":"one"}
{"line_id":"a_1","text":"again"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.jsonl"), []byte(body), 0o644))
	h := newHarness(t, dir, &scriptRuntime{}, nil)

	state, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, state.Status)

	require.Len(t, state.Records, 1, "no record beyond ingest")
	rec := state.Records[0]
	assert.Equal(t, model.PhaseIngest, rec.Phase)
	assert.Equal(t, model.PhaseFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, errs.CodeValidation, rec.Error.Code)
	assert.Equal(t, 1, rec.Error.Details["first_row"])
	assert.Equal(t, 2, rec.Error.Details["second_row"])

	entries, err := h.stores.Logs.Read(context.Background(), state.RunID)
	require.NoError(t, err)
	var found bool
	for _, entry := range entries {
		if entry.Level != model.LevelError || entry.Data == nil {
			continue
		}
		if entry.Data["code"] == errs.CodeValidation {
			found = true
			details, ok := entry.Data["details"].(map[string]any)
			require.True(t, ok)
			assert.EqualValues(t, 1, details["first_row"])
			assert.EqualValues(t, 2, details["second_row"])
		}
	}
	assert.True(t, found, "log carries the validation error with both rows")

	kinds := lifecycleKinds(h.progress.Updates())
	assert.Equal(t, 1, countKind(kinds, model.EventPhaseFailed))
	assert.Equal(t, 1, countKind(kinds, model.EventRunFailed))
}

func TestRunPartialLanguageFailure(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "one", "two")
	rt := &scriptRuntime{failLangs: map[string]bool{"de": true}}
	h := newHarness(t, dir, rt, func(cfg *config.Config) {
		cfg.Languages.Targets = []string{"de", "fr"}
		cfg.Agents = map[string]config.AgentConfig{"translate": {MaxChunkRetries: 1}}
	})

	state, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, state.Status)

	deTranslate := model.PhaseKey{Phase: model.PhaseTranslate, Language: "de"}
	assert.Nil(t, state.LatestCompleted(deTranslate))
	frExport := state.LatestCompleted(model.PhaseKey{Phase: model.PhaseExport, Language: "fr"})
	require.NotNil(t, frExport, "the healthy language still completes")

	var deExport *model.PhaseRunRecord
	for i := range state.Records {
		rec := &state.Records[i]
		if rec.Phase == model.PhaseExport && rec.Language == "de" {
			deExport = rec
		}
	}
	require.NotNil(t, deExport)
	assert.Equal(t, model.PhaseBlocked, deExport.Status)
	assert.FileExists(t, filepath.Join(dir, "export", "fr.jsonl"))
	assert.NoFileExists(t, filepath.Join(dir, "export", "de.jsonl"))
}

func TestRunEmptyInput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.jsonl"), nil, 0o644))
	h := newHarness(t, dir, &scriptRuntime{}, nil)

	state, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, state.Status)

	ingestRec := state.LatestCompleted(model.PhaseKey{Phase: model.PhaseIngest})
	require.NotNil(t, ingestRec)
	assert.Equal(t, 0, ingestRec.Summary["source_lines_count"])
	exportRec := state.LatestCompleted(model.PhaseKey{Phase: model.PhaseExport, Language: "fr"})
	require.NotNil(t, exportRec)
	assert.Equal(t, 0, exportRec.Summary["records_exported"])
}

func TestRunCancellation(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "one", "two", "three")
	rt := &scriptRuntime{delay: 50 * time.Millisecond}
	h := newHarness(t, dir, rt, func(cfg *config.Config) {
		cfg.Agents = map[string]config.AgentConfig{"translate": {ChunkSize: 1, MaxConcurrentChunks: 1}}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	state, err := h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunCancelled, state.Status)

	// The snapshot is durable despite the dead context.
	reloaded, err := h.stores.RunStates.Load(context.Background(), state.RunID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, model.RunCancelled, reloaded.Status)
}

func TestRunRecordsDependencyLineage(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "one")
	h := newHarness(t, dir, &scriptRuntime{}, func(cfg *config.Config) {
		cfg.Phases.Enabled = []string{"ingest", "context", "pretranslation", "translate", "export"}
	})

	state, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.RunCompleted, state.Status)

	translateRec := state.LatestCompleted(model.PhaseKey{Phase: model.PhaseTranslate, Language: "fr"})
	require.NotNil(t, translateRec)
	depPhases := make(map[model.Phase]int)
	for _, dep := range translateRec.Dependencies {
		depPhases[dep.Phase] = dep.Revision
	}
	assert.Equal(t, map[model.Phase]int{
		model.PhaseIngest:       1,
		model.PhaseContext:      1,
		model.PhasePretranslate: 1,
	}, depPhases)
}

func TestBuildPlanValidation(t *testing.T) {
	_, err := BuildPlan(config.Config{})
	require.Error(t, err)
	assert.Equal(t, errs.CodeConfig, errs.CodeOf(err))

	_, err = BuildPlan(config.Config{Phases: config.PhasesConfig{Enabled: []string{"translate"}}})
	require.Error(t, err)

	_, err = BuildPlan(config.Config{Phases: config.PhasesConfig{Enabled: []string{"ingest", "translate"}}})
	require.Error(t, err, "language-specific phase without targets")

	plan, err := BuildPlan(config.Config{
		Phases:    config.PhasesConfig{Enabled: []string{"ingest", "translate"}},
		Languages: config.Languages{Source: "en", Targets: []string{"fr", "de"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []model.PhaseKey{
		{Phase: model.PhaseIngest},
		{Phase: model.PhaseTranslate, Language: "fr"},
		{Phase: model.PhaseTranslate, Language: "de"},
	}, plan.Items)
}

func TestResumeUnknownRun(t *testing.T) {
	h := newHarness(t, t.TempDir(), &scriptRuntime{}, nil)
	_, err := h.orch.Resume(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.Equal(t, errs.CodeValidation, errs.CodeOf(err))
}
