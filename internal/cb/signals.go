package cb

import (
	"math"
	"strings"
	"time"

	"github.com/eventiq/recoengine/internal/models"
)

// categoryScore is 1.0 on a category match, 0.5 if the user has no
// category preference at all, else 0.1.
func categoryScore(p Profile, e models.EventFeatures) float64 {
	if len(p.PreferredCategories) == 0 {
		return 0.5
	}
	if p.PreferredCategories[e.Category] {
		return 1.0
	}
	return 0.1
}

// tagScore is the Jaccard similarity of preferred tags and event tags,
// 0.5 if either side is empty.
func tagScore(p Profile, e models.EventFeatures) float64 {
	if len(p.PreferredTags) == 0 || len(e.Tags) == 0 {
		return 0.5
	}

	eventTags := make(map[string]bool, len(e.Tags))
	for _, t := range e.Tags {
		eventTags[t] = true
	}

	var intersection, union int
	seen := map[string]bool{}
	for t := range p.PreferredTags {
		seen[t] = true
		union++
		if eventTags[t] {
			intersection++
		}
	}
	for t := range eventTags {
		if !seen[t] {
			union++
		}
	}

	if union == 0 {
		return 0.5
	}
	return float64(intersection) / float64(union)
}

// textScore is the semantic signal: max cosine similarity between the
// event's semantic vector and each preferred-blob embedding, 0.5 if the
// user has no text preferences.
func textScore(blobVectors [][]float32, eventVector []float64) float64 {
	if len(blobVectors) == 0 {
		return 0.5
	}

	var max float64
	for _, bv := range blobVectors {
		sim := cosine32(bv, eventVector)
		if sim > max {
			max = sim
		}
	}
	return max
}

func cosine32(a []float32, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		av := float64(a[i])
		dot += av * b[i]
		na += av * av
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SimilarScore rates how alike two events are for the similar-events API:
// cosine similarity of their precomputed semantic vectors, boosted for a
// shared category and for each overlapping tag.
func SimilarScore(seed, candidate models.EventFeatures) float64 {
	score := cosineVectors(seed.SemanticVector, candidate.SemanticVector)

	if seed.Category != "" && seed.Category == candidate.Category {
		score += 0.1
	}

	seedTags := make(map[string]bool, len(seed.Tags))
	for _, t := range seed.Tags {
		seedTags[t] = true
	}
	var overlap int
	for _, t := range candidate.Tags {
		if seedTags[t] {
			overlap++
		}
	}
	if overlap > 0 {
		score += 0.05 * float64(overlap)
	}

	if score > 1 {
		score = 1
	}
	return score
}

func cosineVectors(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// locationScore is 1.0 if preferred_locations is empty,
// 1.0 for virtual events when the user prefers "online", 1.0 for a venue
// the user has attended before or a preferred-location substring match,
// 0.5 otherwise.
func locationScore(p Profile, e models.EventFeatures) float64 {
	if len(p.PreferredLocations) == 0 {
		return 1.0
	}

	if e.IsVirtual {
		if p.PreferredLocations["online"] {
			return 1.0
		}
		return 0.5
	}

	if e.Venue != "" {
		if p.VenuePrefs[e.Venue] {
			return 1.0
		}
		venue := strings.ToLower(e.Venue)
		for loc := range p.PreferredLocations {
			if strings.Contains(venue, strings.ToLower(loc)) {
				return 1.0
			}
		}
	}

	return 0.5
}

// priceScore is 1.0 inside the user's price range, 0.8 below it, and
// decays proportionally above it with a 0.1 floor.
func priceScore(p Profile, e models.EventFeatures) float64 {
	price := e.Price
	min, max := p.PriceMin, p.PriceMax
	if max <= 0 {
		max = math.Inf(1)
	}

	switch {
	case price >= min && price <= max:
		return 1.0
	case price < min:
		return 0.8
	default:
		if math.IsInf(max, 1) || price <= 0 {
			return 0.1
		}
		v := max / price
		if v < 0.1 {
			return 0.1
		}
		return v
	}
}

// virtualScore scales with the learned virtual preference: 0.5 neutral,
// rising toward 1.0 as the event format matches the preference.
func virtualScore(p Profile, e models.EventFeatures) float64 {
	if e.IsVirtual {
		return 0.5 + 0.5*p.VirtualPreference
	}
	return 0.5 + 0.5*(1-p.VirtualPreference)
}

// timeScore favors events starting within 30 days, tapers to 90 days
// and beyond, and heavily penalizes events already started.
func timeScore(e models.EventFeatures, now time.Time) float64 {
	diff := e.StartTime.Sub(now)
	switch {
	case diff < 0:
		return 0.1
	case diff <= 30*24*time.Hour:
		return 1.0
	case diff <= 90*24*time.Hour:
		return 0.9
	default:
		return 0.7
	}
}
