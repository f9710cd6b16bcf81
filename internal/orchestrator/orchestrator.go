// Package orchestrator drives a localization run end to end: it plans
// the (phase, language) executions, gates them on dependencies, assigns
// revisions with lineage, persists artifacts and snapshots, and emits
// lifecycle events on the log and progress streams.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rentl/internal/config"
	"rentl/internal/errs"
	"rentl/internal/ids"
	"rentl/internal/logging"
	"rentl/internal/model"
	"rentl/internal/phase"
	"rentl/internal/sink"
	"rentl/internal/store"
)

// runSeries keys the run-level progress series in the sequence map.
const runSeries = "run"

// Options wires an orchestrator.
type Options struct {
	Config   config.Config
	Agents   phase.Registry
	Stores   store.Bundle
	Logs     sink.LogSink
	Progress sink.ProgressSink
	// Clock defaults to time.Now; tests may pin it.
	Clock func() time.Time
}

// Orchestrator executes runs. One orchestrator serves one run at a time.
type Orchestrator struct {
	cfg      config.Config
	agents   phase.Registry
	stores   store.Bundle
	logs     sink.LogSink
	progress sink.ProgressSink
	clock    func() time.Time

	mu  sync.Mutex
	seq map[string]int
}

// New builds an orchestrator from options.
func New(opts Options) *Orchestrator {
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		cfg:      opts.Config,
		agents:   opts.Agents,
		stores:   opts.Stores,
		logs:     opts.Logs,
		progress: opts.Progress,
		clock:    clock,
	}
}

// Run starts a fresh run and drives it to a terminal state. Phase
// failures are recorded in the returned state, not returned as errors;
// the error return is reserved for setup and persistence failures.
func (o *Orchestrator) Run(ctx context.Context) (*model.RunState, error) {
	plan, err := BuildPlan(o.cfg)
	if err != nil {
		return nil, err
	}
	runID, err := ids.NewRunID()
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeRuntime, "allocate run id")
	}
	now := o.clock()
	state := &model.RunState{
		SchemaVersion:     model.RunStateSchemaVersion,
		RunID:             runID,
		CreatedAt:         now,
		UpdatedAt:         now,
		ConfigFingerprint: o.cfg.Fingerprint(),
		Status:            model.RunRunning,
	}
	o.seq = make(map[string]int)
	return o.execute(ctx, state, plan, nil)
}

// Resume reloads a persisted run, invalidates stale work, and executes
// whatever is missing. An unchanged, completed run is a no-op apart
// from the run_started/run_completed pair.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*model.RunState, error) {
	state, err := o.stores.RunStates.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, errs.Newf(errs.CodeValidation, "run %s is unknown", runID).
			WithNext("list runs to find a valid run id")
	}
	plan, err := BuildPlan(o.cfg)
	if err != nil {
		return nil, err
	}

	o.seq = restoreSequences(state)
	state.Status = model.RunRunning
	state.ConfigFingerprint = o.cfg.Fingerprint()

	invalidated := markStale(state, plan, o.cfg)
	return o.execute(ctx, state, plan, invalidated)
}

// runData is the in-memory output context threaded between phases.
type runData struct {
	source      []model.SourceLine
	summaries   []model.SceneSummary
	annotations []model.Annotation
	translated  map[string][]model.TranslatedLine
	issues      map[string][]model.QaIssue
}

func newRunData() *runData {
	return &runData{
		translated: make(map[string][]model.TranslatedLine),
		issues:     make(map[string][]model.QaIssue),
	}
}

func (o *Orchestrator) execute(ctx context.Context, state *model.RunState, plan Plan, invalidated []model.PhaseKey) (*model.RunState, error) {
	if err := o.emitRunEvent(ctx, state, model.EventRunStarted, ""); err != nil {
		return nil, err
	}
	for _, key := range invalidated {
		if err := o.emitPhaseEvent(ctx, state, key, model.EventPhaseInvalidated, nil, ""); err != nil {
			return nil, err
		}
	}
	if err := o.snapshot(ctx, state); err != nil {
		return nil, err
	}

	data := newRunData()
	if err := o.preload(ctx, state, plan, data); err != nil {
		return nil, err
	}

	failed := make(map[model.PhaseKey]bool)
	anyFailure := false

	for _, key := range plan.Items {
		if ctx.Err() != nil {
			return o.finishCancelled(state)
		}
		if rec := state.LatestCompleted(key); rec != nil {
			continue
		}

		agent, ok := o.agents[key.Phase]
		if !ok {
			return nil, errs.Newf(errs.CodeConfig, "no agent registered for phase %s", key.Phase).
				WithNext("register an agent for every enabled phase")
		}

		if blockedBy, blocked := o.gate(state, key, failed); blocked {
			anyFailure = true
			failed[key] = true
			now := o.clock()
			state.Records = append(state.Records, model.PhaseRunRecord{
				Phase:     key.Phase,
				Language:  key.Language,
				Revision:  state.MaxRevision(key) + 1,
				Status:    model.PhaseBlocked,
				StartedAt: now,
				EndedAt:   now,
				Error: &model.PhaseError{
					Code:       errs.CodeOrchestration,
					Message:    fmt.Sprintf("dependency %s did not complete", blockedBy),
					NextAction: "fix the upstream failure and resume the run",
					Details:    map[string]any{"dependency": blockedBy.String()},
				},
			})
			if err := o.emitPhaseEvent(ctx, state, key, model.EventPhaseBlocked, nil, blockedBy.String()); err != nil {
				return nil, err
			}
			if err := o.snapshot(ctx, state); err != nil {
				return nil, err
			}
			continue
		}

		record, err := o.runPhase(ctx, state, key, agent, data)
		if err != nil {
			return nil, err
		}
		if record.Status != model.PhaseCompleted {
			anyFailure = true
			failed[key] = true
			if ctx.Err() != nil {
				return o.finishCancelled(state)
			}
			if key.Phase == model.PhaseIngest {
				// Nothing downstream can run without source lines.
				break
			}
		}
	}

	if ctx.Err() != nil {
		return o.finishCancelled(state)
	}

	state.UpdatedAt = o.clock()
	if anyFailure {
		state.Status = model.RunFailed
		if err := o.emitRunEvent(ctx, state, model.EventRunFailed, "one or more phases failed"); err != nil {
			return nil, err
		}
	} else {
		state.Status = model.RunCompleted
		if err := o.emitRunEvent(ctx, state, model.EventRunCompleted, ""); err != nil {
			return nil, err
		}
	}
	if err := o.snapshot(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// gate reports whether key is blocked, naming the first unmet
// dependency.
func (o *Orchestrator) gate(state *model.RunState, key model.PhaseKey, failed map[model.PhaseKey]bool) (model.PhaseKey, bool) {
	for _, dep := range hardDependencies(key, o.cfg) {
		if failed[dep] || state.LatestCompleted(dep) == nil {
			return dep, true
		}
	}
	for _, dep := range softDependencies(key, o.cfg) {
		if failed[dep] {
			return dep, true
		}
	}
	return model.PhaseKey{}, false
}

// runPhase executes one plan item and persists its outcome. The
// returned error is reserved for persistence and event failures.
func (o *Orchestrator) runPhase(ctx context.Context, state *model.RunState, key model.PhaseKey, agent phase.Agent, data *runData) (model.PhaseRunRecord, error) {
	revision := state.MaxRevision(key) + 1
	record := model.PhaseRunRecord{
		Phase:        key.Phase,
		Language:     key.Language,
		Revision:     revision,
		StartedAt:    o.clock(),
		Dependencies: o.lineage(state, key),
		Fingerprint:  o.cfg.PhaseFingerprint(key.Phase),
	}

	if err := o.emitPhaseEvent(ctx, state, key, model.EventPhaseStarted, nil, ""); err != nil {
		return record, err
	}

	out, runErr := agent.Run(ctx, o.inputFor(state, key, data), func(m model.Milestone) {
		o.publishMilestone(ctx, state, key, m)
	})
	record.EndedAt = o.clock()
	record.Summary = out.Summary

	if runErr != nil {
		record.Status = model.PhaseFailed
		typed := errs.AsError(runErr)
		record.Error = &model.PhaseError{
			Code:       typed.Code,
			Message:    typed.Message,
			NextAction: typed.NextAction,
			Details:    typed.Details,
		}
		if ref, ok := o.saveDiagnostic(ctx, state.RunID, key, revision, out.Partial); ok {
			record.ArtifactRefs = append(record.ArtifactRefs, ref)
		}
		state.Records = append(state.Records, record)
		if err := o.emitPhaseEvent(ctx, state, key, model.EventPhaseFailed, nil, typed.Message); err != nil {
			return record, err
		}
		if err := o.snapshot(ctx, state); err != nil {
			return record, err
		}
		o.logEntry(ctx, state, key.Phase, model.LevelError, "phase_failed",
			fmt.Sprintf("%s failed: %s", key, typed.Message),
			map[string]any{"code": typed.Code, "details": typed.Details})
		return record, nil
	}

	o.absorb(key, data, &out)
	body, format, err := encodeArtifact(key.Phase, &out)
	if err != nil {
		return record, err
	}
	ref, err := o.stores.Artifacts.Save(ctx, store.SaveArtifactRequest{
		RunID:    state.RunID,
		Phase:    key.Phase,
		Language: key.Language,
		Revision: revision,
		Format:   format,
		Body:     body,
	})
	if err != nil {
		return record, err
	}
	record.ArtifactRefs = []string{ref}
	record.Status = model.PhaseCompleted
	state.Records = append(state.Records, record)

	metrics := summaryMetrics(out.Summary)
	if err := o.emitPhaseEvent(ctx, state, key, model.EventPhaseCompleted, metrics, ""); err != nil {
		return record, err
	}
	if err := o.snapshot(ctx, state); err != nil {
		return record, err
	}
	return record, nil
}

// lineage records the revisions of every upstream output the phase
// consumes.
func (o *Orchestrator) lineage(state *model.RunState, key model.PhaseKey) []model.Dependency {
	var deps []model.Dependency
	for _, depKey := range allDependencies(key, o.cfg) {
		if rec := state.LatestCompleted(depKey); rec != nil {
			deps = append(deps, model.Dependency{
				Phase:    depKey.Phase,
				Language: depKey.Language,
				Revision: rec.Revision,
			})
		}
	}
	return deps
}

func (o *Orchestrator) inputFor(state *model.RunState, key model.PhaseKey, data *runData) phase.Input {
	return phase.Input{
		RunID:          state.RunID,
		Language:       key.Language,
		SourceLanguage: o.cfg.Languages.Source,
		StyleGuide:     o.cfg.StyleGuide,
		Source:         data.source,
		Summaries:      data.summaries,
		Annotations:    data.annotations,
		Translated:     data.translated[key.Language],
		Issues:         data.issues[key.Language],
		Params:         o.cfg.PhaseParameters(key.Phase),
	}
}

// absorb merges a completed phase's output into the run context with a
// deterministic order.
func (o *Orchestrator) absorb(key model.PhaseKey, data *runData, out *phase.Output) {
	switch key.Phase {
	case model.PhaseIngest:
		sortSource(out.Source)
		data.source = out.Source
	case model.PhaseContext:
		sortSummaries(out.Summaries)
		data.summaries = out.Summaries
	case model.PhasePretranslate:
		sortAnnotations(out.Annotations)
		data.annotations = out.Annotations
	case model.PhaseTranslate, model.PhaseEdit:
		sortTranslated(out.Translated)
		data.translated[key.Language] = out.Translated
	case model.PhaseQa:
		data.issues[key.Language] = out.Issues
	case model.PhaseExport:
	}
}

// preload rebuilds the run context from the artifacts of completed,
// non-stale phases so a resume can feed downstream work.
func (o *Orchestrator) preload(ctx context.Context, state *model.RunState, plan Plan, data *runData) error {
	for _, key := range plan.Items {
		rec := state.LatestCompleted(key)
		if rec == nil || len(rec.ArtifactRefs) == 0 || key.Phase == model.PhaseExport {
			continue
		}
		body, err := o.stores.Artifacts.Load(ctx, state.RunID, rec.ArtifactRefs[0])
		if err != nil {
			return err
		}
		out, err := decodeArtifact(key.Phase, body)
		if err != nil {
			return err
		}
		o.absorb(key, data, out)
	}
	return nil
}

// saveDiagnostic persists the partial outputs of a failed phase. A
// diagnostic save failure is logged and swallowed: the phase failure is
// the story, not its post-mortem.
func (o *Orchestrator) saveDiagnostic(ctx context.Context, runID string, key model.PhaseKey, revision int, partial any) (string, bool) {
	body, ok := encodePartial(partial)
	if !ok {
		return "", false
	}
	ref, err := o.stores.Artifacts.Save(ctx, store.SaveArtifactRequest{
		RunID:    runID,
		Phase:    key.Phase,
		Language: key.Language,
		Revision: revision,
		Format:   store.FormatJSONL,
		Body:     body,
		Status:   model.PhaseFailed,
	})
	if err != nil {
		logger := logging.ForRun(runID)
		logger.Warn().Err(err).Str("phase", string(key.Phase)).Msg("diagnostic artifact write failed")
		return "", false
	}
	return ref, true
}

func (o *Orchestrator) finishCancelled(state *model.RunState) (*model.RunState, error) {
	state.Status = model.RunCancelled
	state.UpdatedAt = o.clock()
	// Terminal events and the final snapshot must survive the cancelled
	// context.
	ctx := context.Background()
	if err := o.emitRunEvent(ctx, state, model.EventRunFailed, "run cancelled"); err != nil {
		return nil, err
	}
	if err := o.snapshot(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// snapshot persists the run state with the sequence counters folded in.
// Artifacts referenced by the records are always written first.
func (o *Orchestrator) snapshot(ctx context.Context, state *model.RunState) error {
	state.UpdatedAt = o.clock()
	o.mu.Lock()
	counters := make(map[string]any, len(o.seq))
	for k, v := range o.seq {
		counters[k] = v
	}
	o.mu.Unlock()
	if state.Progress == nil {
		state.Progress = make(map[string]any)
	}
	state.Progress["sequence_numbers"] = counters
	return o.stores.RunStates.Save(ctx, state)
}

func restoreSequences(state *model.RunState) map[string]int {
	seq := make(map[string]int)
	raw, ok := state.Progress["sequence_numbers"].(map[string]any)
	if !ok {
		return seq
	}
	for k, v := range raw {
		switch n := v.(type) {
		case float64:
			seq[k] = int(n)
		case int:
			seq[k] = n
		}
	}
	return seq
}

func (o *Orchestrator) nextSeq(series string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq[series]++
	return o.seq[series]
}

// emitRunEvent publishes a run-level lifecycle event to both streams.
func (o *Orchestrator) emitRunEvent(ctx context.Context, state *model.RunState, kind, errorSummary string) error {
	update := model.ProgressUpdate{
		RunID:          state.RunID,
		Kind:           kind,
		SequenceNumber: o.nextSeq(runSeries),
		Timestamp:      o.clock(),
		ErrorSummary:   errorSummary,
	}
	if err := o.progress.Publish(ctx, update); err != nil {
		return errs.Wrap(err, errs.CodeStorage, "publish run event")
	}
	level := model.LevelInfo
	if kind == model.EventRunFailed {
		level = model.LevelError
	}
	o.logEntry(ctx, state, "", level, kind, runMessage(kind, errorSummary), nil)
	return nil
}

func runMessage(kind, errorSummary string) string {
	if errorSummary != "" {
		return errorSummary
	}
	return kind
}

// emitPhaseEvent publishes a phase lifecycle event to both streams.
func (o *Orchestrator) emitPhaseEvent(ctx context.Context, state *model.RunState, key model.PhaseKey, kind string, metrics map[string]model.Metric, detail string) error {
	update := model.ProgressUpdate{
		RunID:          state.RunID,
		Phase:          key.Phase,
		Language:       key.Language,
		Kind:           kind,
		SequenceNumber: o.nextSeq(key.String()),
		Timestamp:      o.clock(),
		Metrics:        metrics,
	}
	if kind == model.EventPhaseFailed || kind == model.EventPhaseBlocked {
		update.ErrorSummary = detail
	}
	if kind == model.EventPhaseCompleted {
		done := 100.0
		update.PercentComplete = &done
	}
	if err := o.progress.Publish(ctx, update); err != nil {
		return errs.Wrap(err, errs.CodeStorage, "publish phase event")
	}

	level := model.LevelInfo
	if kind == model.EventPhaseFailed {
		level = model.LevelError
	}
	message := fmt.Sprintf("%s %s", key, kind)
	if detail != "" {
		message += ": " + detail
	}
	o.logEntry(ctx, state, key.Phase, level, kind, message, nil)
	return nil
}

// publishMilestone forwards an agent milestone as a phase_progress
// event. Milestones are progress-stream only; a publish failure is
// logged, not fatal, because milestones carry no state.
func (o *Orchestrator) publishMilestone(ctx context.Context, state *model.RunState, key model.PhaseKey, m model.Milestone) {
	update := model.ProgressUpdate{
		RunID:           state.RunID,
		Phase:           key.Phase,
		Language:        key.Language,
		Kind:            model.EventPhaseProgress,
		SequenceNumber:  o.nextSeq(key.String()),
		Timestamp:       o.clock(),
		PercentComplete: m.PercentComplete,
		Metrics:         m.Metrics,
	}
	if err := o.progress.Publish(ctx, update); err != nil {
		logger := logging.ForRun(state.RunID)
		logger.Warn().Err(err).Str("phase", string(key.Phase)).Msg("milestone publish failed")
	}
}

// logEntry writes a structured log line; log sinks are best-effort.
func (o *Orchestrator) logEntry(ctx context.Context, state *model.RunState, p model.Phase, level, event, message string, data map[string]any) {
	if o.logs == nil {
		return
	}
	entry := model.LogEntry{
		Timestamp: o.clock(),
		Level:     level,
		Event:     event,
		RunID:     state.RunID,
		Phase:     p,
		Message:   message,
		Data:      data,
	}
	if err := o.logs.Write(ctx, entry); err != nil {
		logger := logging.ForRun(state.RunID)
		logger.Warn().Err(err).Str("event", event).Msg("log sink write failed")
	}
}

// summaryMetrics lifts the numeric summary counters into progress
// metrics.
func summaryMetrics(summary map[string]any) map[string]model.Metric {
	if len(summary) == 0 {
		return nil
	}
	metrics := make(map[string]model.Metric)
	for k, v := range summary {
		switch n := v.(type) {
		case int:
			metrics[k] = model.Metric{Value: float64(n)}
		case float64:
			metrics[k] = model.Metric{Value: n}
		}
	}
	if len(metrics) == 0 {
		return nil
	}
	return metrics
}
