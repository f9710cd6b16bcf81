package ingest

import (
	"bytes"
	"encoding/csv"
	"strings"

	"rentl/internal/errs"
	"rentl/internal/model"
)

// Conventional column names for CSV scripts.
const (
	defaultIDColumn      = "line_id"
	defaultTextColumn    = "text"
	defaultSceneColumn   = "scene_id"
	defaultSpeakerColumn = "speaker"
)

// decodeCSV parses a headered CSV script. Columns beyond the mapped
// ones are preserved in SourceColumns for round-tripping at export.
func decodeCSV(data []byte, opts Options) ([]parsedLine, int, error) {
	idCol := valueOr(opts.IDColumn, defaultIDColumn)
	textCol := valueOr(opts.TextColumn, defaultTextColumn)
	sceneCol := valueOr(opts.SceneColumn, defaultSceneColumn)
	speakerCol := valueOr(opts.SpeakerColumn, defaultSpeakerColumn)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, 0, errs.Wrap(err, errs.CodeIngest, "parse csv input").
			WithDetail("reason", "format_invalid")
	}
	if len(records) == 0 {
		return nil, 0, errs.New(errs.CodeIngest, "csv input has no header row").
			WithDetail("reason", "format_invalid").
			WithDetail("row", 1)
	}

	header := records[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.ToLower(name))] = i
	}
	idIdx, ok := index[idCol]
	if !ok {
		return nil, 0, errs.Newf(errs.CodeIngest, "csv header has no %q column", idCol).
			WithNext("set ingest options id_column to the identifier column name").
			WithDetail("reason", "schema_violation").
			WithDetail("row", 1).
			WithDetail("field", idCol)
	}
	textIdx, ok := index[textCol]
	if !ok {
		return nil, 0, errs.Newf(errs.CodeIngest, "csv header has no %q column", textCol).
			WithNext("set ingest options text_column to the dialogue column name").
			WithDetail("reason", "schema_violation").
			WithDetail("row", 1).
			WithDetail("field", textCol)
	}

	var parsed []parsedLine
	skipped := 0
	for i, record := range records[1:] {
		row := i + 2
		if len(record) <= idIdx || len(record) <= textIdx {
			return nil, 0, errs.Newf(errs.CodeIngest, "row %d has %d fields, want at least %d", row, len(record), max(idIdx, textIdx)+1).
				WithDetail("reason", "format_invalid").
				WithDetail("row", row)
		}
		id := strings.TrimSpace(record[idIdx])
		text := record[textIdx]
		if id == "" && strings.TrimSpace(text) == "" {
			skipped++
			continue
		}
		if id == "" {
			return nil, 0, errs.Newf(errs.CodeIngest, "row %d: missing %s", row, idCol).
				WithDetail("reason", "schema_violation").
				WithDetail("row", row).
				WithDetail("field", idCol)
		}
		if strings.TrimSpace(text) == "" {
			skipped++
			continue
		}

		line := model.SourceLine{LineID: id, Text: text}
		if idx, ok := index[sceneCol]; ok && idx < len(record) {
			line.SceneID = strings.TrimSpace(record[idx])
		}
		if idx, ok := index[speakerCol]; ok && idx < len(record) {
			line.Speaker = strings.TrimSpace(record[idx])
		}
		for col, idx := range index {
			if col == idCol || col == textCol || col == sceneCol || col == speakerCol {
				continue
			}
			if idx < len(record) && record[idx] != "" {
				if line.SourceColumns == nil {
					line.SourceColumns = make(map[string]string)
				}
				line.SourceColumns[col] = record[idx]
			}
		}
		parsed = append(parsed, parsedLine{row: row, line: line})
	}
	return parsed, skipped, nil
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(strings.ToLower(v))
}
