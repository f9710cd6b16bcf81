package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rentl/internal/errs"
)

// FSArtifactStore keeps artifact bodies and a JSONL index per run.
type FSArtifactStore struct {
	root string
	mu   sync.Mutex
}

// NewArtifactStore creates a filesystem-backed artifact store rooted at
// the workspace directory.
func NewArtifactStore(workspaceDir string) *FSArtifactStore {
	return &FSArtifactStore{root: filepath.Join(workspaceDir, ".rentl", "artifacts")}
}

func (s *FSArtifactStore) runDir(runID string) string {
	return filepath.Join(s.root, runID)
}

// Save writes the body, then appends the index line. Completed artifacts
// are write-once per (phase, language, revision).
func (s *FSArtifactStore) Save(ctx context.Context, req SaveArtifactRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.list(req.RunID)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Phase == req.Phase && e.Language == req.Language && e.Revision == req.Revision && e.Status == req.Status {
			return "", errs.Newf(errs.CodeStorage,
				"artifact for %s/%s revision %d already exists as %s",
				req.Phase, req.Language, req.Revision, e.ArtifactRef).
				WithNext("a new phase execution must use a fresh revision")
		}
	}

	ref := fmt.Sprintf("artifact-%d", len(entries)+1)
	ext := "json"
	if req.Format == FormatJSONL {
		ext = "jsonl"
	}
	path := filepath.Join(s.runDir(req.RunID), ref+"."+ext)
	if err := WriteFileAtomic(path, req.Body); err != nil {
		return "", errs.Wrap(err, errs.CodeStorage, "write artifact body")
	}

	entry := ArtifactIndexEntry{
		ArtifactRef: ref,
		Phase:       req.Phase,
		Language:    req.Language,
		Revision:    req.Revision,
		Format:      req.Format,
		SizeBytes:   int64(len(req.Body)),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Status:      req.Status,
	}
	if err := s.appendIndex(req.RunID, entry); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *FSArtifactStore) appendIndex(runID string, entry ArtifactIndexEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return errs.Wrap(err, errs.CodeStorage, "marshal artifact index entry")
	}
	path := filepath.Join(s.runDir(runID), "index.jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(err, errs.CodeStorage, "create artifact dir")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.Wrap(err, errs.CodeStorage, "open artifact index")
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return errs.Wrap(err, errs.CodeStorage, "append artifact index")
	}
	return nil
}

// Load returns the artifact body for a ref.
func (s *FSArtifactStore) Load(ctx context.Context, runID, ref string) ([]byte, error) {
	entries, err := s.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ArtifactRef != ref {
			continue
		}
		ext := "json"
		if e.Format == FormatJSONL {
			ext = "jsonl"
		}
		data, err := os.ReadFile(filepath.Join(s.runDir(runID), ref+"."+ext))
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeStorage, "read artifact body")
		}
		return data, nil
	}
	return nil, errs.Newf(errs.CodeStorage, "artifact %s not found in run %s", ref, runID)
}

// List returns the index entries in write order.
func (s *FSArtifactStore) List(_ context.Context, runID string) ([]ArtifactIndexEntry, error) {
	return s.list(runID)
}

func (s *FSArtifactStore) list(runID string) ([]ArtifactIndexEntry, error) {
	f, err := os.Open(filepath.Join(s.runDir(runID), "index.jsonl"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeStorage, "open artifact index")
	}
	defer func() { _ = f.Close() }()

	var out []ArtifactIndexEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry ArtifactIndexEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, errs.Wrap(err, errs.CodeStorage, "decode artifact index line")
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(err, errs.CodeStorage, "scan artifact index")
	}
	return out, nil
}

// EncodeJSONL renders one JSON object per element, LF-terminated.
func EncodeJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("marshal jsonl item: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// DecodeJSONL parses a line-delimited JSON body.
func DecodeJSONL[T any](body []byte) ([]T, error) {
	var out []T
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, fmt.Errorf("decode jsonl line: %w", err)
		}
		out = append(out, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan jsonl body: %w", err)
	}
	return out, nil
}
