package model

import "time"

// RunStateSchemaVersion is bumped on incompatible snapshot changes.
const RunStateSchemaVersion = 1

// Phase record statuses.
const (
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
	PhaseBlocked   = "blocked"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Dependency records the upstream revision a phase execution consumed.
type Dependency struct {
	Phase    Phase  `json:"upstream_phase"`
	Language string `json:"upstream_language,omitempty"`
	Revision int    `json:"upstream_revision"`
}

// PhaseError is the structured error attached to a failed record.
type PhaseError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	NextAction string         `json:"next_action,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// PhaseRunRecord is the immutable record of one phase execution.
// Completed records are never mutated; a later upstream rerun may flip
// Stale, leaving the rest of the record intact.
type PhaseRunRecord struct {
	Phase        Phase          `json:"phase"`
	Language     string         `json:"target_language,omitempty"`
	Revision     int            `json:"revision"`
	Status       string         `json:"status"`
	Stale        bool           `json:"stale,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      time.Time      `json:"ended_at"`
	Dependencies []Dependency   `json:"dependencies,omitempty"`
	ArtifactRefs []string       `json:"artifact_refs,omitempty"`
	Fingerprint  string         `json:"config_fingerprint,omitempty"`
	Summary      map[string]any `json:"summary,omitempty"`
	Error        *PhaseError    `json:"error,omitempty"`
}

// Key identifies the (phase, language) series the record belongs to.
func (r PhaseRunRecord) Key() PhaseKey {
	return PhaseKey{Phase: r.Phase, Language: r.Language}
}

// PhaseKey identifies one (phase, language) execution series.
type PhaseKey struct {
	Phase    Phase  `json:"phase"`
	Language string `json:"language,omitempty"`
}

func (k PhaseKey) String() string {
	if k.Language == "" {
		return string(k.Phase)
	}
	return string(k.Phase) + "/" + k.Language
}

// RunState is the authoritative snapshot of a run.
type RunState struct {
	SchemaVersion     int              `json:"schema_version"`
	RunID             string           `json:"run_id"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	ConfigFingerprint string           `json:"config_fingerprint"`
	Status            string           `json:"status"`
	Records           []PhaseRunRecord `json:"records"`
	Progress          map[string]any   `json:"progress,omitempty"`
}

// LatestCompleted returns the newest non-stale completed record for key,
// or nil if none exists.
func (s *RunState) LatestCompleted(key PhaseKey) *PhaseRunRecord {
	var found *PhaseRunRecord
	for i := range s.Records {
		r := &s.Records[i]
		if r.Key() == key && r.Status == PhaseCompleted && !r.Stale {
			if found == nil || r.Revision > found.Revision {
				found = r
			}
		}
	}
	return found
}

// MaxRevision returns the highest revision recorded for key, regardless
// of status, or 0 if the series has never run.
func (s *RunState) MaxRevision(key PhaseKey) int {
	maxRev := 0
	for i := range s.Records {
		if s.Records[i].Key() == key && s.Records[i].Revision > maxRev {
			maxRev = s.Records[i].Revision
		}
	}
	return maxRev
}

// RunSummary is the listing row kept in the run index.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Status    string    `json:"status"`
	Phases    int       `json:"phases"`
	Languages []string  `json:"languages,omitempty"`
}
