// Package model defines the data shared across pipeline phases.
package model

// SourceLine is one atomic unit of text to translate.
type SourceLine struct {
	LineID        string            `json:"line_id"`
	SceneID       string            `json:"scene_id,omitempty"`
	RouteID       string            `json:"route_id,omitempty"`
	Speaker       string            `json:"speaker,omitempty"`
	Text          string            `json:"text"`
	SourceColumns map[string]string `json:"source_columns,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

// TranslatedLine is one translated unit. LineID and SourceText are
// preserved from the source line.
type TranslatedLine struct {
	LineID        string            `json:"line_id"`
	SceneID       string            `json:"scene_id,omitempty"`
	RouteID       string            `json:"route_id,omitempty"`
	Speaker       string            `json:"speaker,omitempty"`
	SourceText    string            `json:"source_text"`
	Text          string            `json:"text"`
	SourceColumns map[string]string `json:"source_columns,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

// SceneSummary is per-scene context produced by the context phase.
type SceneSummary struct {
	SceneID    string   `json:"scene_id"`
	Summary    string   `json:"summary"`
	Characters []string `json:"characters,omitempty"`
}

// Annotation is a per-line pretranslation note.
type Annotation struct {
	LineID      string `json:"line_id"`
	Category    string `json:"category"`
	Explanation string `json:"explanation"`
	Hint        string `json:"hint,omitempty"`
}

// Annotation categories.
const (
	AnnotationIdiom    = "idiom"
	AnnotationCultural = "cultural"
	AnnotationWordplay = "wordplay"
	AnnotationTone     = "tone"
	AnnotationOther    = "other"
)

// QaIssue is one finding from the qa phase.
type QaIssue struct {
	IssueID    int            `json:"issue_id"`
	LineID     string         `json:"line_id"`
	Category   string         `json:"category"`
	Severity   string         `json:"severity"`
	Message    string         `json:"message"`
	Suggestion string         `json:"suggestion,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// QaIssue severities.
const (
	SeverityMinor    = "minor"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

// QaIssue categories.
const (
	IssueFormatting  = "formatting"
	IssueStyle       = "style"
	IssueConsistency = "consistency"
	IssueAccuracy    = "accuracy"
	IssueOmission    = "omission"
)
