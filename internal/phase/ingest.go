package phase

import (
	"context"
	"path/filepath"
	"strings"

	"rentl/internal/errs"
	"rentl/internal/ingest"
	"rentl/internal/model"
)

// IngestAgent loads the source script through the ingest port.
type IngestAgent struct {
	reader ingest.Reader
}

// NewIngestAgent wraps an ingest reader.
func NewIngestAgent(reader ingest.Reader) *IngestAgent {
	return &IngestAgent{reader: reader}
}

func (a *IngestAgent) Phase() model.Phase { return model.PhaseIngest }

// Run reads the configured input file. The path comes from the phase
// parameters; the format defaults to the file extension.
func (a *IngestAgent) Run(ctx context.Context, in Input, onMilestone func(model.Milestone)) (Output, error) {
	path := stringParam(in.Params, "input_path")
	if path == "" {
		return Output{}, errs.New(errs.CodeConfig, "ingest has no input_path").
			WithNext("set phases.parameters.ingest.input_path in the configuration")
	}
	format := stringParam(in.Params, "input_format")
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}

	opts := ingest.Options{
		IDColumn:      stringParam(in.Params, "id_column"),
		TextColumn:    stringParam(in.Params, "text_column"),
		SceneColumn:   stringParam(in.Params, "scene_column"),
		SpeakerColumn: stringParam(in.Params, "speaker_column"),
	}

	res, err := a.reader.Read(ctx, path, format, opts)
	if err != nil {
		return Output{}, err
	}

	scenes := make(map[string]bool)
	for _, line := range res.Lines {
		if line.SceneID != "" {
			scenes[line.SceneID] = true
		}
	}

	done := 100.0
	emit(onMilestone, model.Milestone{
		PercentComplete: &done,
		Metrics: map[string]model.Metric{
			"source_lines_count": {Value: float64(len(res.Lines)), Unit: "lines"},
		},
	})

	return Output{
		Source: res.Lines,
		Summary: map[string]any{
			"source_lines_count":  len(res.Lines),
			"scene_count":         len(scenes),
			"empty_lines_skipped": res.EmptyLinesSkipped,
		},
	}, nil
}
