package phase

import (
	"context"
	"path/filepath"

	"rentl/internal/export"
	"rentl/internal/model"
)

// ExportAgent writes the final translated lines through the export port.
type ExportAgent struct {
	writer export.Writer
	// workspaceDir anchors the default output directory.
	workspaceDir string
	// untranslatedPolicy is the run-level default, overridable per phase
	// parameters.
	untranslatedPolicy string
}

// NewExportAgent wraps an export writer.
func NewExportAgent(writer export.Writer, workspaceDir, untranslatedPolicy string) *ExportAgent {
	return &ExportAgent{writer: writer, workspaceDir: workspaceDir, untranslatedPolicy: untranslatedPolicy}
}

func (a *ExportAgent) Phase() model.Phase { return model.PhaseExport }

func (a *ExportAgent) Run(ctx context.Context, in Input, onMilestone func(model.Milestone)) (Output, error) {
	format := stringParam(in.Params, "output_format")
	if format == "" {
		format = export.FormatJSONL
	}
	dir := stringParam(in.Params, "output_dir")
	if dir == "" {
		dir = filepath.Join(a.workspaceDir, "export")
	}
	path := filepath.Join(dir, in.Language+"."+format)

	policy := stringParam(in.Params, "untranslated_policy")
	if policy == "" {
		policy = a.untranslatedPolicy
	}

	summary, err := a.writer.Write(ctx, path, format, export.Options{UntranslatedPolicy: policy}, in.Translated)
	if err != nil {
		return Output{}, err
	}

	done := 100.0
	emit(onMilestone, model.Milestone{
		PercentComplete: &done,
		Metrics: map[string]model.Metric{
			"records_exported": {Value: float64(summary.RecordsExported), Unit: "records"},
		},
	})

	return Output{
		Export: &summary,
		Summary: map[string]any{
			"records_exported":     summary.RecordsExported,
			"untranslated_records": summary.UntranslatedRecords,
			"output_path":          path,
		},
	}, nil
}
