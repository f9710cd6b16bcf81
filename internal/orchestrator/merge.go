package orchestrator

import (
	"sort"

	"rentl/internal/ids"
	"rentl/internal/model"
)

// Merged phase outputs are ordered by scene then line ordinal, so a
// fixed input set yields byte-identical artifacts regardless of chunk
// completion order.

func sortSource(lines []model.SourceLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		return lineLess(lines[i].SceneID, lines[i].LineID, lines[j].SceneID, lines[j].LineID)
	})
}

func sortTranslated(lines []model.TranslatedLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		return lineLess(lines[i].SceneID, lines[i].LineID, lines[j].SceneID, lines[j].LineID)
	})
}

func sortSummaries(summaries []model.SceneSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return ids.Ordinal(summaries[i].SceneID) < ids.Ordinal(summaries[j].SceneID)
	})
}

func sortAnnotations(notes []model.Annotation) {
	sort.SliceStable(notes, func(i, j int) bool {
		return ids.Ordinal(notes[i].LineID) < ids.Ordinal(notes[j].LineID)
	})
}

func lineLess(sceneA, lineA, sceneB, lineB string) bool {
	if sceneA != sceneB {
		return ids.Ordinal(sceneA) < ids.Ordinal(sceneB)
	}
	return ids.Ordinal(lineA) < ids.Ordinal(lineB)
}
