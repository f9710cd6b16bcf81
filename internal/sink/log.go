package sink

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rentl/internal/model"
	"rentl/internal/store"
)

// StoreLogSink writes entries through to the durable log store.
type StoreLogSink struct {
	Store store.LogStore
}

// Write appends the entry to the per-run JSONL stream.
func (s *StoreLogSink) Write(ctx context.Context, entry model.LogEntry) error {
	return s.Store.Append(ctx, entry)
}

// ConsoleLogSink mirrors entries onto the zerolog console logger.
type ConsoleLogSink struct{}

// Write emits the entry at its mapped zerolog level.
func (ConsoleLogSink) Write(_ context.Context, entry model.LogEntry) error {
	var ev *zerolog.Event
	switch entry.Level {
	case model.LevelDebug:
		ev = log.Debug()
	case model.LevelWarn:
		ev = log.Warn()
	case model.LevelError:
		ev = log.Error()
	default:
		ev = log.Info()
	}
	ev = ev.Str("event", entry.Event).Str("run_id", entry.RunID)
	if entry.Phase != "" {
		ev = ev.Str("phase", string(entry.Phase))
	}
	if len(entry.Data) > 0 {
		ev = ev.Interface("data", entry.Data)
	}
	ev.Msg(entry.Message)
	return nil
}

// CompositeLogSink fans entries out to several sinks. A failing sink is
// reported on the console logger and skipped; it never fails the run.
type CompositeLogSink struct {
	Sinks []LogSink
}

// NewCompositeLogSink builds a composite over the given sinks.
func NewCompositeLogSink(sinks ...LogSink) *CompositeLogSink {
	return &CompositeLogSink{Sinks: sinks}
}

// Write delivers the entry to every sink.
func (s *CompositeLogSink) Write(ctx context.Context, entry model.LogEntry) error {
	for _, inner := range s.Sinks {
		if err := inner.Write(ctx, entry); err != nil {
			log.Warn().Err(err).Str("event", entry.Event).Msg("log sink write failed")
		}
	}
	return nil
}

// RedactingLogSink scrubs secrets from the message and string data
// values before passing through.
type RedactingLogSink struct {
	Inner LogSink
}

// Write redacts and delegates.
func (s *RedactingLogSink) Write(ctx context.Context, entry model.LogEntry) error {
	entry.Message = store.RedactString(entry.Message)
	if len(entry.Data) > 0 {
		data := make(map[string]any, len(entry.Data))
		for k, v := range entry.Data {
			if str, ok := v.(string); ok {
				data[k] = store.RedactString(str)
			} else {
				data[k] = v
			}
		}
		entry.Data = data
	}
	return s.Inner.Write(ctx, entry)
}
