package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"

	"rentl/internal/errs"
	"rentl/internal/model"
)

// encodeJSONL renders one TranslatedLine object per line.
func encodeJSONL(lines []model.TranslatedLine) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return nil, errs.Wrap(err, errs.CodeExport, fmt.Sprintf("encode line %s", line.LineID)).
				WithDetail("line_id", line.LineID)
		}
	}
	return buf.Bytes(), nil
}

// encodeCSV renders a headered CSV. The fixed columns come first,
// followed by any pass-through source columns in sorted order.
func encodeCSV(lines []model.TranslatedLine) ([]byte, error) {
	extraSet := make(map[string]bool)
	for _, line := range lines {
		for col := range line.SourceColumns {
			extraSet[col] = true
		}
	}
	extras := make([]string, 0, len(extraSet))
	for col := range extraSet {
		extras = append(extras, col)
	}
	sort.Strings(extras)

	header := append([]string{"line_id", "scene_id", "speaker", "source_text", "text"}, extras...)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, errs.Wrap(err, errs.CodeExport, "write csv header")
	}
	for _, line := range lines {
		record := []string{line.LineID, line.SceneID, line.Speaker, line.SourceText, line.Text}
		for _, col := range extras {
			record = append(record, line.SourceColumns[col])
		}
		if err := w.Write(record); err != nil {
			return nil, errs.Wrap(err, errs.CodeExport, fmt.Sprintf("write line %s", line.LineID)).
				WithDetail("line_id", line.LineID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errs.Wrap(err, errs.CodeExport, "flush csv output")
	}
	return buf.Bytes(), nil
}
