// Package sink transports structured log and progress events out of the
// orchestrator. Sink writes are best-effort for logs and strictly
// ordered for progress.
package sink

import (
	"context"

	"rentl/internal/model"
)

// LogSink accepts structured log entries.
type LogSink interface {
	Write(ctx context.Context, entry model.LogEntry) error
}

// ProgressSink accepts progress updates. Implementations reject
// out-of-order sequence numbers within one (run, phase, language)
// series with a typed error.
type ProgressSink interface {
	Publish(ctx context.Context, update model.ProgressUpdate) error
}
