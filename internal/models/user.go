package models

// UserPreferences holds explicit and implicitly learned user preferences.
type UserPreferences struct {
	UserID             string   `json:"user_id"`
	PreferredCategories []string `json:"preferred_categories,omitempty"`
	PreferredLocations  []string `json:"preferred_locations,omitempty"`
	PriceMin            *float64 `json:"price_min,omitempty"`
	PriceMax            *float64 `json:"price_max,omitempty"`
	Interests           []string `json:"interests,omitempty"`
	AvoidCategories     []string `json:"avoid_categories,omitempty"`
	// VirtualPreference is learned from interaction history; starts at 0.5.
	VirtualPreference float64 `json:"virtual_preference"`
}

// ProfileCompleteness is the weighted profile completeness score:
// 0.2 categories + 0.15 locations + 0.15 interests + 0.1
// price_min + 0.1 price_max + up to 0.3 for interaction volume, capped 1.0.
func ProfileCompleteness(p UserPreferences, interactionCount int) float64 {
	var score float64
	if len(p.PreferredCategories) > 0 {
		score += 0.2
	}
	if len(p.PreferredLocations) > 0 {
		score += 0.15
	}
	if len(p.Interests) > 0 {
		score += 0.15
	}
	if p.PriceMin != nil {
		score += 0.1
	}
	if p.PriceMax != nil {
		score += 0.1
	}

	interactionScore := float64(interactionCount) / 50.0 * 0.3
	if interactionScore > 0.3 {
		interactionScore = 0.3
	}
	score += interactionScore

	if score > 1.0 {
		score = 1.0
	}
	return score
}
