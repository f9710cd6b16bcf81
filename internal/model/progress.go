package model

import "time"

// Progress event kinds.
const (
	EventRunStarted       = "run_started"
	EventRunCompleted     = "run_completed"
	EventRunFailed        = "run_failed"
	EventPhaseStarted     = "phase_started"
	EventPhaseProgress    = "phase_progress"
	EventPhaseCompleted   = "phase_completed"
	EventPhaseFailed      = "phase_failed"
	EventPhaseBlocked     = "phase_blocked"
	EventPhaseInvalidated = "phase_invalidated"
)

// Metric is a named counter with a unit.
type Metric struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// ProgressUpdate is one event on the progress stream. SequenceNumber is
// strictly increasing within a (run, phase, language) series.
type ProgressUpdate struct {
	RunID           string            `json:"run_id"`
	Phase           Phase             `json:"phase,omitempty"`
	Language        string            `json:"target_language,omitempty"`
	Kind            string            `json:"kind"`
	SequenceNumber  int               `json:"sequence_number"`
	Timestamp       time.Time         `json:"timestamp"`
	PercentComplete *float64          `json:"percent_complete,omitempty"`
	Metrics         map[string]Metric `json:"metrics,omitempty"`
	ETA             *time.Time        `json:"eta,omitempty"`
	ErrorSummary    string            `json:"error_summary,omitempty"`
}

// Milestone is the raw progress signal a phase agent emits mid-flight.
// The orchestrator rewrites milestones into the ProgressUpdate envelope.
type Milestone struct {
	PercentComplete *float64
	Metrics         map[string]Metric
}
