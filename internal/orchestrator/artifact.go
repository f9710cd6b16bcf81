package orchestrator

import (
	"encoding/json"

	"rentl/internal/errs"
	"rentl/internal/model"
	"rentl/internal/phase"
	"rentl/internal/store"
)

// encodeArtifact renders a phase output as its persisted body. Line
// sequences are JSONL; the export summary is a single JSON object.
func encodeArtifact(p model.Phase, out *phase.Output) ([]byte, store.ArtifactFormat, error) {
	var (
		body []byte
		err  error
	)
	format := store.FormatJSONL
	switch p {
	case model.PhaseIngest:
		body, err = store.EncodeJSONL(out.Source)
	case model.PhaseContext:
		body, err = store.EncodeJSONL(out.Summaries)
	case model.PhasePretranslate:
		body, err = store.EncodeJSONL(out.Annotations)
	case model.PhaseTranslate, model.PhaseEdit:
		body, err = store.EncodeJSONL(out.Translated)
	case model.PhaseQa:
		body, err = store.EncodeJSONL(out.Issues)
	case model.PhaseExport:
		format = store.FormatJSON
		body, err = json.Marshal(out.Export)
	default:
		return nil, "", errs.Newf(errs.CodeRuntime, "no artifact encoding for phase %s", p)
	}
	if err != nil {
		return nil, "", errs.Wrap(err, errs.CodeStorage, "encode artifact body")
	}
	return body, format, nil
}

// decodeArtifact parses a persisted body back into a phase output.
func decodeArtifact(p model.Phase, body []byte) (*phase.Output, error) {
	out := &phase.Output{}
	var err error
	switch p {
	case model.PhaseIngest:
		out.Source, err = store.DecodeJSONL[model.SourceLine](body)
	case model.PhaseContext:
		out.Summaries, err = store.DecodeJSONL[model.SceneSummary](body)
	case model.PhasePretranslate:
		out.Annotations, err = store.DecodeJSONL[model.Annotation](body)
	case model.PhaseTranslate, model.PhaseEdit:
		out.Translated, err = store.DecodeJSONL[model.TranslatedLine](body)
	case model.PhaseQa:
		out.Issues, err = store.DecodeJSONL[model.QaIssue](body)
	default:
		return nil, errs.Newf(errs.CodeRuntime, "no artifact decoding for phase %s", p)
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeStorage, "decode artifact body")
	}
	return out, nil
}

// encodePartial renders the partial outputs a failed phase handed back.
// The payload is whatever slice the pool produced, one object per line.
func encodePartial(partial any) ([]byte, bool) {
	if partial == nil {
		return nil, false
	}
	items, err := json.Marshal(partial)
	if err != nil || string(items) == "null" || string(items) == "[]" {
		return nil, false
	}
	var generic []json.RawMessage
	if err := json.Unmarshal(items, &generic); err != nil {
		return items, true
	}
	body, err := store.EncodeJSONL(generic)
	if err != nil {
		return nil, false
	}
	return body, true
}
