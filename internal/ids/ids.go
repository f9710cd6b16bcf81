// Package ids produces and validates the identifiers used across a run.
package ids

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// lineIDPattern is the canonical shape for line and scene identifiers.
var lineIDPattern = regexp.MustCompile(`^[a-z]+(?:_[0-9]+)+$`)

var nonIDChars = regexp.MustCompile(`[^a-z0-9]+`)

// NewRunID returns a time-ordered, lexicographically sortable run
// identifier (UUIDv7).
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new run id: %w", err)
	}
	return id.String(), nil
}

// ValidLineID reports whether id matches the canonical line/scene shape.
func ValidLineID(id string) bool {
	return lineIDPattern.MatchString(id)
}

// Normalize converts a human identifier into the canonical shape: a
// lowercase alpha slug followed by one or more numeric suffixes joined
// with underscores. Normalize("Scene 3, Line 12") == "scene_3_12".
// It returns an error when no alpha prefix or numeric suffix survives.
func Normalize(raw string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return "", fmt.Errorf("empty identifier")
	}
	if lineIDPattern.MatchString(lower) {
		return lower, nil
	}

	parts := nonIDChars.Split(lower, -1)
	var prefix string
	var numbers []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if _, err := strconv.Atoi(part); err == nil {
			numbers = append(numbers, part)
			continue
		}
		if prefix == "" {
			prefix = keepAlpha(part)
		}
	}
	if prefix == "" || len(numbers) == 0 {
		return "", fmt.Errorf("identifier %q cannot be normalized to slug_N form", raw)
	}
	return prefix + "_" + strings.Join(numbers, "_"), nil
}

func keepAlpha(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Ordinal returns a sort key for a canonical identifier: the alpha
// prefix followed by its numeric suffixes zero-padded to fixed width, so
// that lexicographic order matches numeric order (scene_2 < scene_10).
func Ordinal(id string) string {
	parts := strings.Split(id, "_")
	if len(parts) < 2 {
		return id
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		n, err := strconv.Atoi(part)
		if err != nil {
			b.WriteString("_" + part)
			continue
		}
		b.WriteString(fmt.Sprintf("_%012d", n))
	}
	return b.String()
}
