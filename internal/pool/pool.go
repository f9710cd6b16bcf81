// Package pool fans one phase's work out to an LLM-backed agent with
// bounded parallelism, per-chunk retries, and strict input/output ID
// alignment.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"rentl/internal/errs"
	"rentl/internal/llm"
)

// Chunk failure kinds.
const (
	FailAlignment  = "alignment"
	FailSchema     = "schema"
	FailConnection = "connection"
)

// Config bounds one pool execution.
type Config struct {
	MaxConcurrentChunks int
	MaxChunkRetries     int
}

// Progress reports completion of one chunk, success or failure.
type Progress struct {
	ChunksCompleted int
	ChunksTotal     int
	ItemsCompleted  int
	Failed          bool
}

// Worker adapts one phase's payloads to the pool. Call receives the
// chunk plus retry feedback ("" on the first attempt) and returns the
// chunk's outputs.
type Worker[I, O any] struct {
	InputID  func(I) string
	OutputID func(O) string
	Call     func(ctx context.Context, chunk []I, feedback string) ([]O, error)
}

// ChunkError names the chunk that exhausted its retries.
type ChunkError struct {
	ChunkIndex  int
	FirstID     string
	LastID      string
	Kind        string
	Attempts    int
	LastPayload string
	Err         error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d (%s..%s) failed after %d attempts: %s: %v",
		e.ChunkIndex, e.FirstID, e.LastID, e.Attempts, e.Kind, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Result carries the merged outputs, or the partial outputs of the
// chunks that did succeed when Err is set. Partial outputs are for
// diagnostic persistence only; they are never merged into run output.
type Result[O any] struct {
	Outputs []O
	Partial []O
	Err     error
}

// Run executes the chunks with bounded concurrency. Outputs are merged
// in chunk order, so a fixed input yields a fixed output order. A chunk
// failure cancels remaining work and fails the phase.
func Run[I, O any](ctx context.Context, cfg Config, chunks [][]I, w Worker[I, O], onProgress func(Progress)) Result[O] {
	maxConcurrent := cfg.MaxConcurrentChunks
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	results := make([][]O, len(chunks))
	var mu sync.Mutex
	completed := 0
	items := 0

	report := func(failed bool) {
		if onProgress == nil {
			return
		}
		onProgress(Progress{
			ChunksCompleted: completed,
			ChunksTotal:     len(chunks),
			ItemsCompleted:  items,
			Failed:          failed,
		})
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for index, chunk := range chunks {
		if groupCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			outputs, err := runChunk(groupCtx, cfg, index, chunk, w)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report(true)
				return err
			}
			results[index] = outputs
			completed++
			items += len(outputs)
			report(false)
			return nil
		})
	}
	err := g.Wait()

	var merged []O
	for _, outputs := range results {
		merged = append(merged, outputs...)
	}
	if err != nil {
		return Result[O]{Partial: merged, Err: err}
	}
	return Result[O]{Outputs: merged}
}

// runChunk drives one chunk through its retry budget.
func runChunk[I, O any](ctx context.Context, cfg Config, index int, chunk []I, w Worker[I, O]) ([]O, error) {
	inputIDs := make([]string, len(chunk))
	for i, item := range chunk {
		inputIDs[i] = w.InputID(item)
	}
	firstID, lastID := "", ""
	if len(inputIDs) > 0 {
		firstID, lastID = inputIDs[0], inputIDs[len(inputIDs)-1]
	}

	maxRetries := cfg.MaxChunkRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	feedback := ""
	var lastErr error
	kind := FailConnection
	lastPayload := ""
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(err, errs.CodeCancelled, "chunk aborted")
		}
		attempts++

		outputs, err := w.Call(ctx, chunk, feedback)
		if err != nil {
			lastErr = err
			var schemaErr *llm.SchemaError
			switch {
			case errors.As(err, &schemaErr):
				kind = FailSchema
				lastPayload = schemaErr.Payload
				feedback = schemaErr.Feedback()
			case errs.CodeOf(err) == errs.CodeCancelled || ctx.Err() != nil:
				return nil, err
			default:
				kind = FailConnection
				feedback = ""
			}
			continue
		}

		outputIDs := make([]string, len(outputs))
		for i, out := range outputs {
			outputIDs[i] = w.OutputID(out)
		}
		mis := CheckAlignment(inputIDs, outputIDs)
		if mis == nil {
			return orderOutputs(inputIDs, outputIDs, outputs), nil
		}
		lastErr = mis
		kind = FailAlignment
		feedback = mis.Feedback()
	}

	chunkErr := &ChunkError{
		ChunkIndex:  index,
		FirstID:     firstID,
		LastID:      lastID,
		Kind:        kind,
		Attempts:    attempts,
		LastPayload: lastPayload,
		Err:         lastErr,
	}
	code := errs.CodeOrchestration
	if kind == FailConnection {
		code = errs.CodeConnection
	}
	return nil, errs.Wrap(chunkErr, code, fmt.Sprintf("chunk %s..%s did not converge", firstID, lastID)).
		WithNext("inspect the run log and rerun the phase").
		WithDetail("chunk_index", index).
		WithDetail("failure_kind", kind)
}

// orderOutputs arranges a chunk's outputs in input-ID order so merged
// phase output is deterministic regardless of model ordering.
func orderOutputs[O any](inputIDs, outputIDs []string, outputs []O) []O {
	byID := make(map[string]O, len(outputs))
	for i, out := range outputs {
		byID[outputIDs[i]] = out
	}
	ordered := make([]O, 0, len(inputIDs))
	for _, id := range inputIDs {
		ordered = append(ordered, byID[id])
	}
	return ordered
}
