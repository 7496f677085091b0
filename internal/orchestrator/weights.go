package orchestrator

import "github.com/eventiq/recoengine/internal/models"

const (
	algCollaborative = "collaborative"
	algContent       = "content"
	algPopularity    = "popularity"
	algDiversity     = "diversity"
	algHybrid        = "hybrid"
)

// baselineWeights returns the un-adjusted weight table, keyed by user
// tier. Cold-start users lean on content and popularity, sparse users
// sit between that and the baseline, and everyone else gets the
// collaborative-heavy baseline row.
func baselineWeights(tier models.UserTier) map[string]float64 {
	switch tier {
	case models.TierColdStart:
		return map[string]float64{algCollaborative: 0.10, algContent: 0.50, algPopularity: 0.30, algDiversity: 0.10}
	case models.TierSparse:
		return map[string]float64{algCollaborative: 0.30, algContent: 0.40, algPopularity: 0.20, algDiversity: 0.10}
	default:
		return map[string]float64{algCollaborative: 0.40, algContent: 0.35, algPopularity: 0.15, algDiversity: 0.10}
	}
}

// adjustWeights redistributes an algorithm's weight to content (60%) and
// popularity (40%) when that algorithm produced no candidates, and
// symmetrically for content, then renormalizes so weights sum to 1.
// Location and trending are supplementary signals outside this table;
// they carry a weight of 0 in the merge and only surface by riding
// another algorithm's contribution to the same event.
func adjustWeights(tier models.UserTier, cfEmpty, cbEmpty bool) map[string]float64 {
	w := baselineWeights(tier)

	if cfEmpty {
		cfWeight := w[algCollaborative]
		w[algCollaborative] = 0
		w[algContent] += cfWeight * 0.6
		w[algPopularity] += cfWeight * 0.4
	}
	if cbEmpty {
		contentWeight := w[algContent]
		w[algContent] = 0
		w[algCollaborative] += contentWeight * 0.6
		w[algPopularity] += contentWeight * 0.4
	}

	var total float64
	for _, v := range w {
		total += v
	}
	if total > 0 {
		for k := range w {
			w[k] /= total
		}
	}
	return w
}
