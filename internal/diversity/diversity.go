// Package diversity applies category round-robin re-ranking and
// exploration injection to a merged, scored recommendation list, the
// last two stages before final truncation in the Hybrid Orchestrator.
package diversity

import (
	"math"
	"sort"

	"github.com/eventiq/recoengine/internal/models"
)

// Diversify partitions candidates by category and round-robins across
// categories, always taking each category's highest-scored unused item
// next, until k items are chosen. This bounds any one category's share
// of the result to ceil(k / distinct categories). A diversityFactor of 0
// returns the input truncated to k with no re-ranking.
func Diversify(candidates []models.Recommendation, k int, diversityFactor float64) []models.Recommendation {
	if diversityFactor <= 0 {
		return truncate(candidates, k)
	}
	if len(candidates) == 0 {
		return candidates
	}

	byCategory := map[string][]models.Recommendation{}
	var categoryOrder []string
	for _, c := range candidates {
		if _, seen := byCategory[c.Category]; !seen {
			categoryOrder = append(categoryOrder, c.Category)
		}
		byCategory[c.Category] = append(byCategory[c.Category], c)
	}
	for _, cat := range categoryOrder {
		sort.Slice(byCategory[cat], func(i, j int) bool {
			return byCategory[cat][i].Score > byCategory[cat][j].Score
		})
	}

	selected := make([]models.Recommendation, 0, k)
	cursor := map[string]int{}
	for len(selected) < k {
		progressed := false
		for _, cat := range categoryOrder {
			if len(selected) >= k {
				break
			}
			items := byCategory[cat]
			idx := cursor[cat]
			if idx >= len(items) {
				continue
			}
			selected = append(selected, items[idx])
			cursor[cat] = idx + 1
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return selected
}

// MaxPerCategory returns ceil(k / categories), the bound Diversify
// guarantees when every category has at least that many candidates.
func MaxPerCategory(k, categories int) int {
	if categories <= 0 {
		return k
	}
	return int(math.Ceil(float64(k) / float64(categories)))
}

// InjectExploration draws ceil(len(selected)*explorationFactor) events
// from the popularity pool that are not already present in selected,
// discounts their score by 0.8, prefixes their reasons with "Explore
// something new", inserts them, and re-sorts the combined list by score.
func InjectExploration(selected []models.Recommendation, popularityPool []models.Recommendation, explorationFactor float64) []models.Recommendation {
	if explorationFactor <= 0 || len(selected) == 0 {
		return selected
	}

	present := make(map[string]bool, len(selected))
	for _, r := range selected {
		present[r.EventID] = true
	}

	want := int(math.Ceil(float64(len(selected)) * explorationFactor))
	out := append([]models.Recommendation{}, selected...)

	added := 0
	for _, p := range popularityPool {
		if added >= want {
			break
		}
		if present[p.EventID] {
			continue
		}
		explore := p
		explore.Score *= 0.8
		explore.Algorithm = "exploration"
		explore.Reasons = append([]string{"Explore something new"}, p.Reasons...)
		out = append(out, explore)
		present[p.EventID] = true
		added++
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func truncate(recs []models.Recommendation, k int) []models.Recommendation {
	if len(recs) <= k {
		return recs
	}
	return recs[:k]
}
