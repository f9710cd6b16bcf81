// Package export writes translated lines back out to delivery files.
package export

import (
	"context"
	"fmt"
	"strings"

	"rentl/internal/errs"
	"rentl/internal/model"
	"rentl/internal/store"
)

// Supported output formats.
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// Untranslated policies. Error fails the export on the first
// untranslated record, warn counts them and keeps going, allow passes
// them through silently.
const (
	PolicyError = "error"
	PolicyWarn  = "warn"
	PolicyAllow = "allow"
)

// Options tunes one export call.
type Options struct {
	UntranslatedPolicy string `json:"untranslated_policy,omitempty" mapstructure:"untranslated_policy"`
}

// Summary reports what an export wrote.
type Summary struct {
	RecordsExported     int `json:"records_exported"`
	UntranslatedRecords int `json:"untranslated_records"`
}

// Writer is the export port the orchestrator depends on.
type Writer interface {
	Write(ctx context.Context, path, format string, opts Options, lines []model.TranslatedLine) (Summary, error)
}

// FileWriter writes delivery files to the local filesystem.
type FileWriter struct{}

// NewFileWriter returns a Writer over local files.
func NewFileWriter() *FileWriter { return &FileWriter{} }

// Write validates the lines against the untranslated policy and writes
// them to path in the given format, preserving input order.
func (w *FileWriter) Write(ctx context.Context, path, format string, opts Options, lines []model.TranslatedLine) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, errs.Wrap(err, errs.CodeCancelled, "export aborted")
	}

	policy := opts.UntranslatedPolicy
	if policy == "" {
		policy = PolicyWarn
	}

	var summary Summary
	for _, line := range lines {
		if !untranslated(line) {
			continue
		}
		if policy == PolicyError {
			return Summary{}, errs.Newf(errs.CodeExport, "line %s has no translation", line.LineID).
				WithNext("rerun the translate phase or set untranslated_policy to warn").
				WithDetail("reason", "validation_failed").
				WithDetail("line_id", line.LineID)
		}
		summary.UntranslatedRecords++
	}

	var data []byte
	var err error
	switch format {
	case FormatJSONL:
		data, err = encodeJSONL(lines)
	case FormatCSV:
		data, err = encodeCSV(lines)
	default:
		return Summary{}, errs.Newf(errs.CodeExport, "unsupported export format %q", format).
			WithNext(fmt.Sprintf("use one of %s, %s", FormatJSONL, FormatCSV))
	}
	if err != nil {
		return Summary{}, err
	}

	// Delivery files are re-read by external tooling; land them atomically
	// so a crashed export never leaves a truncated file behind.
	if err := store.WriteFileAtomic(path, data); err != nil {
		return Summary{}, errs.Wrap(err, errs.CodeExport, fmt.Sprintf("write %s", path)).
			WithDetail("reason", "io_error").
			WithDetail("path", path)
	}
	summary.RecordsExported = len(lines)
	return summary, nil
}

// untranslated reports whether the line carries no translation at all.
// A translation identical to its source is legitimate (names, numbers,
// interjections), so only empty text counts.
func untranslated(line model.TranslatedLine) bool {
	return strings.TrimSpace(line.Text) == ""
}
