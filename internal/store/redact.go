package store

import (
	"context"
	"regexp"
)

// Known API-key shapes scrubbed from persisted bodies.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]{16,}=*`),
	regexp.MustCompile(`(?i)(api[_-]?key"?\s*[:=]\s*")[^"]{8,}(")`),
}

// Redact replaces known secret shapes in the input.
func Redact(data []byte) []byte {
	out := data
	for _, pattern := range secretPatterns[:3] {
		out = pattern.ReplaceAll(out, []byte("[REDACTED]"))
	}
	out = secretPatterns[3].ReplaceAll(out, []byte("${1}[REDACTED]${2}"))
	return out
}

// RedactString is Redact for strings.
func RedactString(s string) string {
	return string(Redact([]byte(s)))
}

// RedactingArtifactStore scrubs secrets from bodies before persisting.
type RedactingArtifactStore struct {
	Inner ArtifactStore
}

// NewRedactingArtifactStore wraps an artifact store with redaction.
func NewRedactingArtifactStore(inner ArtifactStore) *RedactingArtifactStore {
	return &RedactingArtifactStore{Inner: inner}
}

// Save scrubs the body and delegates.
func (s *RedactingArtifactStore) Save(ctx context.Context, req SaveArtifactRequest) (string, error) {
	req.Body = Redact(req.Body)
	return s.Inner.Save(ctx, req)
}

// Load delegates to the inner store.
func (s *RedactingArtifactStore) Load(ctx context.Context, runID, ref string) ([]byte, error) {
	return s.Inner.Load(ctx, runID, ref)
}

// List delegates to the inner store.
func (s *RedactingArtifactStore) List(ctx context.Context, runID string) ([]ArtifactIndexEntry, error) {
	return s.Inner.List(ctx, runID)
}
