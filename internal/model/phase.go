package model

// Phase names a stage of the pipeline.
type Phase string

// Canonical phases, in execution order.
const (
	PhaseIngest       Phase = "ingest"
	PhaseContext      Phase = "context"
	PhasePretranslate Phase = "pretranslation"
	PhaseTranslate    Phase = "translate"
	PhaseQa           Phase = "qa"
	PhaseEdit         Phase = "edit"
	PhaseExport       Phase = "export"
)

// PhaseOrder is the canonical execution sequence.
var PhaseOrder = []Phase{
	PhaseIngest,
	PhaseContext,
	PhasePretranslate,
	PhaseTranslate,
	PhaseQa,
	PhaseEdit,
	PhaseExport,
}

// LanguageSpecific reports whether the phase fans out per target language.
func (p Phase) LanguageSpecific() bool {
	switch p {
	case PhaseTranslate, PhaseQa, PhaseEdit, PhaseExport:
		return true
	}
	return false
}

// Valid reports whether p is one of the canonical phases.
func (p Phase) Valid() bool {
	for _, known := range PhaseOrder {
		if p == known {
			return true
		}
	}
	return false
}

// Ordinal returns the position of p in the canonical order, or -1.
func (p Phase) Ordinal() int {
	for i, known := range PhaseOrder {
		if p == known {
			return i
		}
	}
	return -1
}
