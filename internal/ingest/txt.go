package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"rentl/internal/errs"
	"rentl/internal/model"
)

// decodeTXT treats each non-empty line of plain text as one source
// line, assigning sequential line_<n> identifiers. An optional
// "Speaker: dialogue" prefix is split off when present.
func decodeTXT(data []byte) ([]parsedLine, int, error) {
	var parsed []parsedLine
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	row := 0
	n := 0
	skipped := 0
	for scanner.Scan() {
		row++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			skipped++
			continue
		}
		n++
		line := model.SourceLine{LineID: fmt.Sprintf("line_%d", n), Text: text}
		if speaker, rest, ok := splitSpeaker(text); ok {
			line.Speaker = speaker
			line.Text = rest
		}
		parsed = append(parsed, parsedLine{row: row, line: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, errs.Wrap(err, errs.CodeIngest, "scan txt input").
			WithDetail("reason", "format_invalid")
	}
	return parsed, skipped, nil
}

// splitSpeaker recognizes a short leading "Name:" tag. Long prefixes or
// prefixes containing sentence text are left alone.
func splitSpeaker(text string) (speaker, rest string, ok bool) {
	idx := strings.Index(text, ":")
	if idx <= 0 || idx > 32 {
		return "", "", false
	}
	candidate := strings.TrimSpace(text[:idx])
	if candidate == "" || strings.ContainsAny(candidate, ".!?\"") {
		return "", "", false
	}
	rest = strings.TrimSpace(text[idx+1:])
	if rest == "" {
		return "", "", false
	}
	return candidate, rest, true
}
