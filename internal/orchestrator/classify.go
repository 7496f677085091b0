package orchestrator

import "github.com/eventiq/recoengine/internal/models"

// ClassifyUser buckets a user by interaction volume: cold_start at
// zero, sparse below cfMinInteractions, active at 20 or more, normal
// otherwise.
func ClassifyUser(nInteractions, cfMinInteractions int) models.UserTier {
	switch {
	case nInteractions == 0:
		return models.TierColdStart
	case nInteractions < cfMinInteractions:
		return models.TierSparse
	case nInteractions >= 20:
		return models.TierActive
	default:
		return models.TierNormal
	}
}
