package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rentl/internal/errs"
	"rentl/internal/model"
)

// FSRunStateStore keeps snapshots as JSON files under the workspace.
type FSRunStateStore struct {
	root string
}

// NewRunStateStore creates a filesystem-backed run-state store rooted at
// the workspace directory.
func NewRunStateStore(workspaceDir string) *FSRunStateStore {
	return &FSRunStateStore{root: filepath.Join(workspaceDir, ".rentl", "run_state")}
}

func (s *FSRunStateStore) snapshotPath(runID string) string {
	return filepath.Join(s.root, "runs", runID+".json")
}

func (s *FSRunStateStore) indexPath(runID string) string {
	return filepath.Join(s.root, "index", runID+".json")
}

// Save writes the snapshot and its index summary atomically. The
// snapshot lands first so the index never points at a missing run.
func (s *FSRunStateStore) Save(_ context.Context, state *model.RunState) error {
	state.SchemaVersion = model.RunStateSchemaVersion
	state.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errs.Wrap(err, errs.CodeStorage, "marshal run state")
	}
	if err := WriteFileAtomic(s.snapshotPath(state.RunID), data); err != nil {
		return errs.Wrap(err, errs.CodeStorage, "write run state snapshot").
			WithNext("check workspace_dir permissions and free space")
	}

	summary := summarize(state)
	idx, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return errs.Wrap(err, errs.CodeStorage, "marshal run summary")
	}
	if err := WriteFileAtomic(s.indexPath(state.RunID), idx); err != nil {
		return errs.Wrap(err, errs.CodeStorage, "write run index entry")
	}
	return nil
}

// Load returns the latest snapshot or nil when the run does not exist.
func (s *FSRunStateStore) Load(_ context.Context, runID string) (*model.RunState, error) {
	data, err := os.ReadFile(s.snapshotPath(runID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeStorage, "read run state snapshot")
	}
	var state model.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errs.Wrap(err, errs.CodeStorage, fmt.Sprintf("decode run state for %s", runID))
	}
	return &state, nil
}

// List scans the index directory. Run IDs are time-ordered, so sorting
// filenames descending yields newest first.
func (s *FSRunStateStore) List(_ context.Context, filter ListFilter) ([]model.RunSummary, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "index"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeStorage, "read run index dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var out []model.RunSummary
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.root, "index", name))
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeStorage, "read run index entry")
		}
		var summary model.RunSummary
		if err := json.Unmarshal(data, &summary); err != nil {
			return nil, errs.Wrap(err, errs.CodeStorage, fmt.Sprintf("decode run summary %s", name))
		}
		if filter.Status != "" && summary.Status != filter.Status {
			continue
		}
		out = append(out, summary)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func summarize(state *model.RunState) model.RunSummary {
	langs := map[string]bool{}
	for _, rec := range state.Records {
		if rec.Language != "" {
			langs[rec.Language] = true
		}
	}
	var languages []string
	for lang := range langs {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	return model.RunSummary{
		RunID:     state.RunID,
		CreatedAt: state.CreatedAt,
		UpdatedAt: state.UpdatedAt,
		Status:    state.Status,
		Phases:    len(state.Records),
		Languages: languages,
	}
}
