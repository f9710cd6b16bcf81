package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"rentl/internal/model"
)

var (
	phaseStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	blockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// ConsoleProgressSink renders one styled line per progress event.
type ConsoleProgressSink struct {
	Out io.Writer
	mu  sync.Mutex
}

// NewConsoleProgressSink writes to stderr by default.
func NewConsoleProgressSink() *ConsoleProgressSink {
	return &ConsoleProgressSink{Out: os.Stderr}
}

// Publish renders the update. Rendering never fails the run.
func (s *ConsoleProgressSink) Publish(_ context.Context, update model.ProgressUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	label := string(update.Phase)
	if update.Language != "" {
		label += " [" + update.Language + "]"
	}
	if label == "" {
		label = "run"
	}

	var status string
	switch update.Kind {
	case model.EventPhaseCompleted, model.EventRunCompleted:
		status = okStyle.Render(update.Kind)
	case model.EventPhaseFailed, model.EventRunFailed:
		status = failStyle.Render(update.Kind)
	case model.EventPhaseBlocked, model.EventPhaseInvalidated:
		status = blockedStyle.Render(update.Kind)
	default:
		status = dimStyle.Render(update.Kind)
	}

	line := fmt.Sprintf("%s %s", phaseStyle.Render(label), status)
	if update.PercentComplete != nil {
		line += dimStyle.Render(fmt.Sprintf(" %.0f%%", *update.PercentComplete))
	}
	if update.ErrorSummary != "" {
		line += " " + failStyle.Render(update.ErrorSummary)
	}
	_, _ = fmt.Fprintln(s.Out, line)
	return nil
}
