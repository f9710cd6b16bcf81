// Package ingest reads game-script source files into ordered SourceLine
// sequences.
package ingest

import (
	"context"
	"fmt"
	"os"

	"rentl/internal/errs"
	"rentl/internal/ids"
	"rentl/internal/model"
)

// Supported input formats.
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTXT   = "txt"
)

// Options tunes column mapping for tabular formats. Zero values fall
// back to conventional column names.
type Options struct {
	IDColumn      string `json:"id_column,omitempty"      mapstructure:"id_column"`
	TextColumn    string `json:"text_column,omitempty"    mapstructure:"text_column"`
	SceneColumn   string `json:"scene_column,omitempty"   mapstructure:"scene_column"`
	SpeakerColumn string `json:"speaker_column,omitempty" mapstructure:"speaker_column"`
}

// Result is a decoded script plus what the decoder dropped on the way.
type Result struct {
	Lines []model.SourceLine
	// EmptyLinesSkipped counts rows dropped for blank or empty text.
	EmptyLinesSkipped int
}

// Reader is the ingest port the orchestrator depends on.
type Reader interface {
	Read(ctx context.Context, path, format string, opts Options) (Result, error)
}

// FileReader reads source scripts from the local filesystem.
type FileReader struct{}

// NewFileReader returns a Reader over local files.
func NewFileReader() *FileReader { return &FileReader{} }

// Read loads, normalizes, and validates the file at path. The returned
// lines preserve file order; empty lines are skipped.
func (r *FileReader) Read(ctx context.Context, path, format string, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, errs.Wrap(err, errs.CodeCancelled, "ingest aborted")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, errs.Newf(errs.CodeIngest, "source file %s does not exist", path).
				WithNext("check the input path in the run configuration").
				WithDetail("reason", "path_not_found").
				WithDetail("path", path)
		}
		return Result{}, errs.Wrap(err, errs.CodeIngest, fmt.Sprintf("read %s", path)).
			WithDetail("path", path)
	}

	var parsed []parsedLine
	var skipped int
	switch format {
	case FormatJSONL:
		parsed, skipped, err = decodeJSONL(data)
	case FormatCSV:
		parsed, skipped, err = decodeCSV(data, opts)
	case FormatTXT:
		parsed, skipped, err = decodeTXT(data)
	default:
		return Result{}, errs.Newf(errs.CodeIngest, "unsupported ingest format %q", format).
			WithNext(fmt.Sprintf("use one of %s, %s, %s", FormatJSONL, FormatCSV, FormatTXT)).
			WithDetail("reason", "format_invalid")
	}
	if err != nil {
		return Result{}, err
	}
	lines, err := finalize(parsed)
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: lines, EmptyLinesSkipped: skipped}, nil
}

// parsedLine pairs a decoded line with its 1-based row in the file for
// error reporting.
type parsedLine struct {
	row  int
	line model.SourceLine
}

// finalize normalizes identifiers and rejects duplicates, reporting the
// rows of both occurrences.
func finalize(parsed []parsedLine) ([]model.SourceLine, error) {
	seen := make(map[string]int, len(parsed))
	out := make([]model.SourceLine, 0, len(parsed))
	for _, p := range parsed {
		lineID, err := ids.Normalize(p.line.LineID)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeIngest, fmt.Sprintf("row %d: invalid line_id %q", p.row, p.line.LineID)).
				WithDetail("reason", "schema_violation").
				WithDetail("row", p.row).
				WithDetail("field", "line_id")
		}
		p.line.LineID = lineID

		if p.line.SceneID != "" {
			sceneID, err := ids.Normalize(p.line.SceneID)
			if err != nil {
				return nil, errs.Wrap(err, errs.CodeIngest, fmt.Sprintf("row %d: invalid scene_id %q", p.row, p.line.SceneID)).
					WithDetail("reason", "schema_violation").
					WithDetail("row", p.row).
					WithDetail("field", "scene_id")
			}
			p.line.SceneID = sceneID
		}

		if prev, ok := seen[p.line.LineID]; ok {
			return nil, errs.Newf(errs.CodeValidation, "duplicate line_id %q at rows %d and %d", p.line.LineID, prev, p.row).
				WithNext("deduplicate the source file before rerunning").
				WithDetail("line_id", p.line.LineID).
				WithDetail("first_row", prev).
				WithDetail("second_row", p.row)
		}
		seen[p.line.LineID] = p.row
		out = append(out, p.line)
	}
	return out, nil
}
