package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentl/internal/errs"
)

func writeInput(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadJSONL(t *testing.T) {
	path := writeInput(t, "script.jsonl", `{"line_id":"a_1","scene_id":"scene_1","speaker":"Mira","text":"Hello."}

{"line_id":"a_2","scene_id":"scene_1","text":"Goodbye."}
{"line_id":"a_3","scene_id":"scene_1","text":"   "}
`)
	res, err := NewFileReader().Read(context.Background(), path, FormatJSONL, Options{})
	require.NoError(t, err)
	lines := res.Lines
	require.Len(t, lines, 2, "blank rows and empty text are skipped")
	assert.Equal(t, "a_1", lines[0].LineID)
	assert.Equal(t, "Mira", lines[0].Speaker)
	assert.Equal(t, "a_2", lines[1].LineID)
	assert.Equal(t, 2, res.EmptyLinesSkipped, "one blank row, one empty-text row")
}

func TestReadJSONLNormalizesIDs(t *testing.T) {
	path := writeInput(t, "script.jsonl", `{"line_id":"Scene 3, Line 12","text":"Hi."}`)
	res, err := NewFileReader().Read(context.Background(), path, FormatJSONL, Options{})
	require.NoError(t, err)
	assert.Equal(t, "scene_3_12", res.Lines[0].LineID)
}

func TestReadPathNotFound(t *testing.T) {
	_, err := NewFileReader().Read(context.Background(), filepath.Join(t.TempDir(), "absent.jsonl"), FormatJSONL, Options{})
	require.Error(t, err)
	assert.Equal(t, errs.CodeIngest, errs.CodeOf(err))
	assert.Equal(t, "path_not_found", errs.AsError(err).Details["reason"])
}

func TestReadFormatInvalid(t *testing.T) {
	path := writeInput(t, "script.jsonl", `{"line_id":"a_1","text":"ok"}
not json at all`)
	_, err := NewFileReader().Read(context.Background(), path, FormatJSONL, Options{})
	require.Error(t, err)
	details := errs.AsError(err).Details
	assert.Equal(t, "format_invalid", details["reason"])
	assert.Equal(t, 2, details["row"])
}

func TestReadDuplicateLineID(t *testing.T) {
	path := writeInput(t, "script.jsonl", `{"line_id":"a_1","text":"one"}
{"line_id":"a_2","text":"two"}
{"line_id":"a_1","text":"three"}`)
	_, err := NewFileReader().Read(context.Background(), path, FormatJSONL, Options{})
	require.Error(t, err)
	assert.Equal(t, errs.CodeValidation, errs.CodeOf(err))
	details := errs.AsError(err).Details
	assert.Equal(t, 1, details["first_row"])
	assert.Equal(t, 3, details["second_row"])
	assert.Contains(t, err.Error(), "a_1")
}

func TestReadCSV(t *testing.T) {
	path := writeInput(t, "script.csv", `line_id,scene_id,speaker,text,voice_file
a_1,scene_1,Mira,"Hello, world.",mira_001.ogg
a_2,scene_1,,Goodbye.,
a_3,scene_1,Mira,,
`)
	res, err := NewFileReader().Read(context.Background(), path, FormatCSV, Options{})
	require.NoError(t, err)
	lines := res.Lines
	require.Len(t, lines, 2, "rows with empty text are skipped")
	assert.Equal(t, "Hello, world.", lines[0].Text)
	assert.Equal(t, "scene_1", lines[0].SceneID)
	assert.Equal(t, map[string]string{"voice_file": "mira_001.ogg"}, lines[0].SourceColumns)
	assert.Empty(t, lines[1].Speaker)
	assert.Equal(t, 1, res.EmptyLinesSkipped)
}

func TestReadCSVMissingColumn(t *testing.T) {
	path := writeInput(t, "script.csv", "id,dialogue\na_1,hi\n")
	_, err := NewFileReader().Read(context.Background(), path, FormatCSV, Options{})
	require.Error(t, err)
	details := errs.AsError(err).Details
	assert.Equal(t, "schema_violation", details["reason"])
	assert.Equal(t, "line_id", details["field"])

	res, err := NewFileReader().Read(context.Background(), path, FormatCSV, Options{IDColumn: "id", TextColumn: "dialogue"})
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, "a_1", res.Lines[0].LineID)
}

func TestReadTXT(t *testing.T) {
	path := writeInput(t, "script.txt", `Mira: Did you hear that?

The door creaks open.
`)
	res, err := NewFileReader().Read(context.Background(), path, FormatTXT, Options{})
	require.NoError(t, err)
	lines := res.Lines
	require.Len(t, lines, 2)
	assert.Equal(t, "line_1", lines[0].LineID)
	assert.Equal(t, "Mira", lines[0].Speaker)
	assert.Equal(t, "Did you hear that?", lines[0].Text)
	assert.Equal(t, "line_2", lines[1].LineID)
	assert.Empty(t, lines[1].Speaker)
	assert.Equal(t, 1, res.EmptyLinesSkipped)
}

func TestReadUnsupportedFormat(t *testing.T) {
	path := writeInput(t, "script.xml", "<lines/>")
	_, err := NewFileReader().Read(context.Background(), path, "xml", Options{})
	require.Error(t, err)
	assert.Equal(t, errs.CodeIngest, errs.CodeOf(err))
}

func TestReadEmptyFile(t *testing.T) {
	path := writeInput(t, "script.jsonl", "")
	res, err := NewFileReader().Read(context.Background(), path, FormatJSONL, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Lines)
	assert.Zero(t, res.EmptyLinesSkipped)
}
