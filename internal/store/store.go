// Package store persists run state, artifacts, and logs under the
// workspace directory.
//
// Layout per run:
//
//	.rentl/run_state/runs/<run_id>.json   latest snapshot
//	.rentl/run_state/index/<run_id>.json  summary for listing
//	.rentl/artifacts/<run_id>/artifact-<n>.{json,jsonl}
//	.rentl/artifacts/<run_id>/index.jsonl
//
// Artifacts are written before the run-state snapshot that references
// them, and every file lands via an atomic rename.
package store

import (
	"context"

	"rentl/internal/model"
)

// RunStateStore persists run snapshots.
type RunStateStore interface {
	// Save atomically replaces the snapshot for the run.
	Save(ctx context.Context, state *model.RunState) error
	// Load returns the latest snapshot, or nil when the run is unknown.
	Load(ctx context.Context, runID string) (*model.RunState, error)
	// List returns run summaries from the index, newest first.
	List(ctx context.Context, filter ListFilter) ([]model.RunSummary, error)
}

// ListFilter narrows List results.
type ListFilter struct {
	Status string
	Limit  int
}

// ArtifactFormat is the persisted body encoding.
type ArtifactFormat string

// Artifact body formats.
const (
	FormatJSON  ArtifactFormat = "json"
	FormatJSONL ArtifactFormat = "jsonl"
)

// SaveArtifactRequest carries one artifact body to persist.
type SaveArtifactRequest struct {
	RunID    string
	Phase    model.Phase
	Language string
	Revision int
	Format   ArtifactFormat
	Body     []byte
	// Status marks diagnostic artifacts of a failed phase execution.
	Status string
}

// ArtifactIndexEntry is one line of the per-run artifact index.
type ArtifactIndexEntry struct {
	ArtifactRef string         `json:"artifact_ref"`
	Phase       model.Phase    `json:"phase"`
	Language    string         `json:"language,omitempty"`
	Revision    int            `json:"revision"`
	Format      ArtifactFormat `json:"format"`
	SizeBytes   int64          `json:"size_bytes"`
	CreatedAt   string         `json:"created_at"`
	Status      string         `json:"status,omitempty"`
}

// ArtifactStore persists phase output bodies.
type ArtifactStore interface {
	// Save writes the body and appends an index entry, returning the
	// artifact ref. Saving a second completed artifact for the same
	// (phase, language, revision) is rejected.
	Save(ctx context.Context, req SaveArtifactRequest) (string, error)
	// Load returns the body for a ref within a run.
	Load(ctx context.Context, runID, ref string) ([]byte, error)
	// List returns the index entries for a run in write order.
	List(ctx context.Context, runID string) ([]ArtifactIndexEntry, error)
}

// LogStore persists the durable JSONL log stream per run.
type LogStore interface {
	Append(ctx context.Context, entry model.LogEntry) error
	Read(ctx context.Context, runID string) ([]model.LogEntry, error)
}

// Bundle groups the stores the orchestrator needs.
type Bundle struct {
	RunStates RunStateStore
	Artifacts ArtifactStore
	Logs      LogStore
}
