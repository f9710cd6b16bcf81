package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"rentl/internal/errs"
	"rentl/internal/model"
)

// FSLogStore appends one LogEntry per line to <logs_dir>/<run_id>.jsonl.
type FSLogStore struct {
	dir string
	mu  sync.Mutex
}

// NewLogStore creates a filesystem-backed log store.
func NewLogStore(logsDir string) *FSLogStore {
	return &FSLogStore{dir: logsDir}
}

// Append writes the entry as a single JSON line.
func (s *FSLogStore) Append(_ context.Context, entry model.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(entry)
	if err != nil {
		return errs.Wrap(err, errs.CodeStorage, "marshal log entry")
	}
	path := filepath.Join(s.dir, entry.RunID+".jsonl")
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errs.Wrap(err, errs.CodeStorage, "create logs dir")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.Wrap(err, errs.CodeStorage, "open log file")
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return errs.Wrap(err, errs.CodeStorage, "append log entry")
	}
	return nil
}

// Read returns every entry logged for a run, in append order.
func (s *FSLogStore) Read(_ context.Context, runID string) ([]model.LogEntry, error) {
	f, err := os.Open(filepath.Join(s.dir, runID+".jsonl"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeStorage, "open log file")
	}
	defer func() { _ = f.Close() }()

	var out []model.LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry model.LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, errs.Wrap(err, errs.CodeStorage, "decode log entry")
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(err, errs.CodeStorage, "scan log file")
	}
	return out, nil
}
