package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"rentl/internal/errs"
	"rentl/internal/model"
)

type seriesKey struct {
	runID    string
	phase    model.Phase
	language string
}

// seqGuard enforces strictly increasing sequence numbers per series.
type seqGuard struct {
	mu   sync.Mutex
	last map[seriesKey]int
}

func (g *seqGuard) check(update model.ProgressUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		g.last = make(map[seriesKey]int)
	}
	key := seriesKey{update.RunID, update.Phase, update.Language}
	if prev, ok := g.last[key]; ok && update.SequenceNumber <= prev {
		return errs.Newf(errs.CodeOrchestration,
			"out-of-order progress update for %s/%s: sequence %d after %d",
			update.Phase, update.Language, update.SequenceNumber, prev)
	}
	g.last[key] = update.SequenceNumber
	return nil
}

// MemoryProgressSink collects updates for inspection in tests.
type MemoryProgressSink struct {
	guard   seqGuard
	mu      sync.Mutex
	updates []model.ProgressUpdate
}

// NewMemoryProgressSink creates an empty in-memory sink.
func NewMemoryProgressSink() *MemoryProgressSink {
	return &MemoryProgressSink{}
}

// Publish records the update after the monotonicity check.
func (s *MemoryProgressSink) Publish(_ context.Context, update model.ProgressUpdate) error {
	if err := s.guard.check(update); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update)
	return nil
}

// Updates returns a copy of everything published so far.
func (s *MemoryProgressSink) Updates() []model.ProgressUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ProgressUpdate, len(s.updates))
	copy(out, s.updates)
	return out
}

// Kinds returns the event kinds in publish order.
func (s *MemoryProgressSink) Kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.updates))
	for i, u := range s.updates {
		out[i] = u.Kind
	}
	return out
}

// FSProgressSink appends one JSON object per line to the per-run
// progress file under <logs_dir>/progress/.
type FSProgressSink struct {
	dir   string
	guard seqGuard
	mu    sync.Mutex
}

// NewFSProgressSink creates a filesystem progress sink.
func NewFSProgressSink(logsDir string) *FSProgressSink {
	return &FSProgressSink{dir: filepath.Join(logsDir, "progress")}
}

// Publish appends the update as a single JSON line.
func (s *FSProgressSink) Publish(_ context.Context, update model.ProgressUpdate) error {
	if err := s.guard.check(update); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(update)
	if err != nil {
		return errs.Wrap(err, errs.CodeStorage, "marshal progress update")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errs.Wrap(err, errs.CodeStorage, "create progress dir")
	}
	path := filepath.Join(s.dir, update.RunID+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.Wrap(err, errs.CodeStorage, "open progress file")
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return errs.Wrap(err, errs.CodeStorage, "append progress update")
	}
	return nil
}

// CompositeProgressSink fans updates out to several sinks. Unlike log
// sinks, a progress sink error propagates: the monotonic contract must
// not silently drift.
type CompositeProgressSink struct {
	Sinks []ProgressSink
}

// NewCompositeProgressSink builds a composite over the given sinks.
func NewCompositeProgressSink(sinks ...ProgressSink) *CompositeProgressSink {
	return &CompositeProgressSink{Sinks: sinks}
}

// Publish delivers the update to every sink, stopping on error.
func (s *CompositeProgressSink) Publish(ctx context.Context, update model.ProgressUpdate) error {
	for _, inner := range s.Sinks {
		if err := inner.Publish(ctx, update); err != nil {
			return err
		}
	}
	return nil
}
