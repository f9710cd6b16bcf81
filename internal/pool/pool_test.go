package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rentl/internal/errs"
	"rentl/internal/llm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type item struct{ id, text string }

type out struct{ id, text string }

func echoWorker(calls *atomic.Int32) Worker[item, out] {
	return Worker[item, out]{
		InputID:  func(i item) string { return i.id },
		OutputID: func(o out) string { return o.id },
		Call: func(_ context.Context, chunk []item, _ string) ([]out, error) {
			if calls != nil {
				calls.Add(1)
			}
			outs := make([]out, len(chunk))
			for i, it := range chunk {
				outs[i] = out{id: it.id, text: it.text}
			}
			return outs, nil
		},
	}
}

func items(n int) []item {
	all := make([]item, n)
	for i := range all {
		all[i] = item{id: fmt.Sprintf("a_%d", i+1), text: fmt.Sprintf("text %d", i+1)}
	}
	return all
}

func TestPartition(t *testing.T) {
	chunks := Partition(items(7), 3)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[2], 1)

	assert.Empty(t, Partition([]item{}, 3))
}

func TestRunMergesInOrder(t *testing.T) {
	res := Run(context.Background(), Config{MaxConcurrentChunks: 4}, Partition(items(25), 10), echoWorker(nil), nil)
	require.NoError(t, res.Err)
	require.Len(t, res.Outputs, 25)
	for i, o := range res.Outputs {
		assert.Equal(t, fmt.Sprintf("a_%d", i+1), o.id)
	}
}

func TestRunBoundedConcurrency(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	w := Worker[item, out]{
		InputID:  func(i item) string { return i.id },
		OutputID: func(o out) string { return o.id },
		Call: func(_ context.Context, chunk []item, _ string) ([]out, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return []out{{id: chunk[0].id, text: chunk[0].text}}, nil
		},
	}

	res := Run(context.Background(), Config{MaxConcurrentChunks: 2}, Partition(items(7), 1), w, nil)
	require.NoError(t, res.Err)
	assert.Len(t, res.Outputs, 7)
	assert.LessOrEqual(t, peak, 2)
}

func TestRunAlignmentRetryThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	w := Worker[item, out]{
		InputID:  func(i item) string { return i.id },
		OutputID: func(o out) string { return o.id },
		Call: func(_ context.Context, chunk []item, feedback string) ([]out, error) {
			if attempts.Add(1) == 1 {
				// First attempt drops the last id.
				assert.Empty(t, feedback)
				outs := make([]out, 0, len(chunk)-1)
				for _, it := range chunk[:len(chunk)-1] {
					outs = append(outs, out{id: it.id})
				}
				return outs, nil
			}
			assert.Contains(t, feedback, "a_3")
			outs := make([]out, len(chunk))
			for i, it := range chunk {
				outs[i] = out{id: it.id}
			}
			return outs, nil
		},
	}

	res := Run(context.Background(), Config{MaxConcurrentChunks: 1, MaxChunkRetries: 3}, Partition(items(3), 3), w, nil)
	require.NoError(t, res.Err)
	assert.Len(t, res.Outputs, 3)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestRunAlignmentExhaustion(t *testing.T) {
	var attempts atomic.Int32
	w := Worker[item, out]{
		InputID:  func(i item) string { return i.id },
		OutputID: func(o out) string { return o.id },
		Call: func(_ context.Context, chunk []item, _ string) ([]out, error) {
			attempts.Add(1)
			// Deterministically broken: always emits a stray id.
			return []out{{id: "zz_9"}}, nil
		},
	}

	res := Run(context.Background(), Config{MaxConcurrentChunks: 1, MaxChunkRetries: 3}, Partition(items(2), 2), w, nil)
	require.Error(t, res.Err)
	assert.Equal(t, int32(4), attempts.Load(), "initial attempt plus three retries")

	var chunkErr *ChunkError
	require.True(t, errors.As(res.Err, &chunkErr))
	assert.Equal(t, FailAlignment, chunkErr.Kind)
	assert.Equal(t, "a_1", chunkErr.FirstID)
	assert.Equal(t, "a_2", chunkErr.LastID)
	assert.Equal(t, errs.CodeOrchestration, errs.CodeOf(res.Err))
}

func TestRunSchemaRetryFeedback(t *testing.T) {
	var attempts atomic.Int32
	w := Worker[item, out]{
		InputID:  func(i item) string { return i.id },
		OutputID: func(o out) string { return o.id },
		Call: func(_ context.Context, chunk []item, feedback string) ([]out, error) {
			if attempts.Add(1) == 1 {
				return nil, &llm.SchemaError{SchemaID: "t.v1", Problems: []string{"lines is required"}, Payload: "{}"}
			}
			assert.Contains(t, feedback, "lines is required")
			return []out{{id: chunk[0].id}}, nil
		},
	}
	res := Run(context.Background(), Config{MaxConcurrentChunks: 1, MaxChunkRetries: 1}, Partition(items(1), 1), w, nil)
	require.NoError(t, res.Err)
}

func TestRunPartialOutputsOnFailure(t *testing.T) {
	w := Worker[item, out]{
		InputID:  func(i item) string { return i.id },
		OutputID: func(o out) string { return o.id },
		Call: func(_ context.Context, chunk []item, _ string) ([]out, error) {
			if chunk[0].id == "a_2" {
				return nil, errs.New(errs.CodeConnection, "backend unreachable")
			}
			return []out{{id: chunk[0].id}}, nil
		},
	}
	// Serial execution so chunk a_1 completes before a_2 fails.
	res := Run(context.Background(), Config{MaxConcurrentChunks: 1}, Partition(items(3), 1), w, nil)
	require.Error(t, res.Err)
	assert.Empty(t, res.Outputs)
	require.Len(t, res.Partial, 1)
	assert.Equal(t, "a_1", res.Partial[0].id)
}

func TestRunProgressCallback(t *testing.T) {
	var mu sync.Mutex
	var seen []Progress
	res := Run(context.Background(), Config{MaxConcurrentChunks: 1}, Partition(items(4), 2), echoWorker(nil), func(p Progress) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})
	require.NoError(t, res.Err)
	require.Len(t, seen, 2)
	assert.Equal(t, 2, seen[1].ChunksCompleted)
	assert.Equal(t, 4, seen[1].ItemsCompleted)
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 1)
	w := Worker[item, out]{
		InputID:  func(i item) string { return i.id },
		OutputID: func(o out) string { return o.id },
		Call: func(ctx context.Context, chunk []item, _ string) ([]out, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return nil, errs.Wrap(ctx.Err(), errs.CodeCancelled, "aborted at suspension point")
		},
	}
	done := make(chan Result[out], 1)
	go func() {
		done <- Run(ctx, Config{MaxConcurrentChunks: 2}, Partition(items(5), 1), w, nil)
	}()
	<-started
	cancel()
	res := <-done
	require.Error(t, res.Err)
	assert.Equal(t, errs.CodeCancelled, errs.CodeOf(res.Err))
}

func TestCheckAlignment(t *testing.T) {
	assert.Nil(t, CheckAlignment([]string{"a_1", "a_2"}, []string{"a_2", "a_1"}))

	mis := CheckAlignment([]string{"a_1", "a_2", "a_3"}, []string{"a_1", "a_1", "a_4"})
	require.NotNil(t, mis)
	assert.Equal(t, []string{"a_2", "a_3"}, mis.Missing)
	assert.Equal(t, []string{"a_4"}, mis.Extra)
	assert.Equal(t, []string{"a_1"}, mis.Duplicate)
	assert.Contains(t, mis.Feedback(), "a_4")
}
