package orchestrator

import (
	"rentl/internal/config"
	"rentl/internal/model"
)

// markStale walks the plan in order and flips completed records stale
// when their phase fingerprint changed, a recorded upstream revision is
// no longer the latest, or an upstream in the plan is itself stale.
// Invalidation is transitive by construction: the plan is dependency
// ordered, so a key is only examined after everything upstream of it.
// It returns the keys invalidated by this pass.
func markStale(state *model.RunState, plan Plan, cfg config.Config) []model.PhaseKey {
	staleKeys := make(map[model.PhaseKey]bool)
	var invalidated []model.PhaseKey

	for _, key := range plan.Items {
		record := state.LatestCompleted(key)
		if record == nil {
			continue
		}

		stale := record.Fingerprint != cfg.PhaseFingerprint(key.Phase)
		if !stale {
			for _, dep := range allDependencies(key, cfg) {
				if staleKeys[dep] {
					stale = true
					break
				}
			}
		}
		if !stale {
			for _, dep := range record.Dependencies {
				depKey := model.PhaseKey{Phase: dep.Phase, Language: dep.Language}
				upstream := state.LatestCompleted(depKey)
				if upstream == nil || upstream.Revision > dep.Revision {
					stale = true
					break
				}
			}
		}
		if !stale {
			continue
		}

		staleKeys[key] = true
		invalidated = append(invalidated, key)
		for i := range state.Records {
			r := &state.Records[i]
			if r.Key() == key && r.Status == model.PhaseCompleted && !r.Stale {
				r.Stale = true
			}
		}
	}
	return invalidated
}
