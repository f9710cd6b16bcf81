package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentl/internal/errs"
	"rentl/internal/model"
)

func TestRunStateSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewRunStateStore(t.TempDir())

	state := &model.RunState{
		RunID:             "0192aaaa-0000-7000-8000-000000000001",
		CreatedAt:         time.Now().UTC(),
		ConfigFingerprint: "abc",
		Status:            model.RunRunning,
		Records: []model.PhaseRunRecord{
			{Phase: model.PhaseIngest, Revision: 1, Status: model.PhaseCompleted},
			{Phase: model.PhaseTranslate, Language: "en", Revision: 1, Status: model.PhaseCompleted},
		},
	}
	require.NoError(t, s.Save(ctx, state))

	loaded, err := s.Load(ctx, state.RunID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, model.RunStateSchemaVersion, loaded.SchemaVersion)
	assert.Equal(t, state.RunID, loaded.RunID)
	assert.Len(t, loaded.Records, 2)
}

func TestRunStateLoadMissing(t *testing.T) {
	s := NewRunStateStore(t.TempDir())
	loaded, err := s.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRunStateListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewRunStateStore(t.TempDir())
	for i, status := range []string{model.RunCompleted, model.RunFailed, model.RunCompleted} {
		require.NoError(t, s.Save(ctx, &model.RunState{
			RunID:  "0192aaaa-0000-7000-8000-00000000000" + string(rune('1'+i)),
			Status: status,
		}))
	}
	all, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	// Newest (highest run id) first.
	assert.True(t, all[0].RunID > all[1].RunID)

	completed, err := s.List(ctx, ListFilter{Status: model.RunCompleted, Limit: 1})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, model.RunCompleted, completed[0].Status)
}

func TestArtifactSaveRejectsDuplicateRevision(t *testing.T) {
	ctx := context.Background()
	s := NewArtifactStore(t.TempDir())

	req := SaveArtifactRequest{
		RunID:    "run_1",
		Phase:    model.PhaseTranslate,
		Language: "en",
		Revision: 1,
		Format:   FormatJSONL,
		Body:     []byte(`{"line_id":"a_1"}` + "\n"),
	}
	ref, err := s.Save(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "artifact-1", ref)

	_, err = s.Save(ctx, req)
	require.Error(t, err)
	assert.Equal(t, errs.CodeStorage, errs.CodeOf(err))

	// A diagnostic artifact under a failed marker is distinct.
	req.Status = model.PhaseFailed
	_, err = s.Save(ctx, req)
	assert.NoError(t, err)
}

func TestArtifactLoadAndList(t *testing.T) {
	ctx := context.Background()
	s := NewArtifactStore(t.TempDir())

	body := []byte(`{"scene_id":"scene_1","summary":"opening"}`)
	ref, err := s.Save(ctx, SaveArtifactRequest{
		RunID: "run_1", Phase: model.PhaseContext, Revision: 1,
		Format: FormatJSON, Body: body,
	})
	require.NoError(t, err)

	got, err := s.Load(ctx, "run_1", ref)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	entries, err := s.List(ctx, "run_1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(len(body)), entries[0].SizeBytes)
	assert.Equal(t, FormatJSON, entries[0].Format)
}

func TestLogStoreAppendRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewLogStore(dir)

	entry := model.LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     model.LevelInfo,
		Event:     "phase_started",
		RunID:     "run_1",
		Phase:     model.PhaseIngest,
		Message:   "ingest started",
	}
	require.NoError(t, s.Append(ctx, entry))
	require.NoError(t, s.Append(ctx, entry))

	got, err := s.Read(ctx, "run_1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "phase_started", got[0].Event)

	// One JSON object per line, no multi-line entries.
	raw, err := os.ReadFile(filepath.Join(dir, "run_1.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	assert.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)))
	}
}

func TestRedact(t *testing.T) {
	in := `{"key":"sk-abcdefghijklmnopqrstuvwxyz123456","note":"Bearer abcdefghijklmnop1234"}`
	out := string(Redact([]byte(in)))
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstuvwxyz123456")
	assert.NotContains(t, out, "abcdefghijklmnop1234")
	assert.Contains(t, out, "[REDACTED]")
}

func TestRedactingArtifactStore(t *testing.T) {
	ctx := context.Background()
	s := NewRedactingArtifactStore(NewArtifactStore(t.TempDir()))
	ref, err := s.Save(ctx, SaveArtifactRequest{
		RunID: "run_1", Phase: model.PhaseIngest, Revision: 1,
		Format: FormatJSON,
		Body:   []byte(`{"text":"call sk-abcdefghijklmnopqrstuvwxyz123456"}`),
	})
	require.NoError(t, err)
	body, err := s.Load(ctx, "run_1", ref)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "sk-abcdefghijklmnopqrstuvwxyz")
}

func TestEncodeDecodeJSONL(t *testing.T) {
	lines := []model.SourceLine{
		{LineID: "a_1", Text: "one"},
		{LineID: "a_2", Text: "two"},
	}
	body, err := EncodeJSONL(lines)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(body), "\n"))

	back, err := DecodeJSONL[model.SourceLine](body)
	require.NoError(t, err)
	assert.Equal(t, lines, back)
}
