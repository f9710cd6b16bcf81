package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"rentl/internal/errs"
	"rentl/internal/model"
)

// decodeJSONL parses one SourceLine object per line. Blank lines and
// lines with empty text are skipped.
func decodeJSONL(data []byte) ([]parsedLine, int, error) {
	var parsed []parsedLine
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	row := 0
	skipped := 0
	for scanner.Scan() {
		row++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			skipped++
			continue
		}
		var line model.SourceLine
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			return nil, 0, errs.Wrap(err, errs.CodeIngest, fmt.Sprintf("row %d is not a JSON object", row)).
				WithDetail("reason", "format_invalid").
				WithDetail("row", row)
		}
		if line.LineID == "" {
			return nil, 0, errs.Newf(errs.CodeIngest, "row %d: missing line_id", row).
				WithDetail("reason", "schema_violation").
				WithDetail("row", row).
				WithDetail("field", "line_id")
		}
		if strings.TrimSpace(line.Text) == "" {
			skipped++
			continue
		}
		parsed = append(parsed, parsedLine{row: row, line: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, errs.Wrap(err, errs.CodeIngest, "scan jsonl input").
			WithDetail("reason", "format_invalid")
	}
	return parsed, skipped, nil
}
