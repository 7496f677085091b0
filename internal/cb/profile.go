// Package cb implements the CB Recommender: builds a per-user profile from
// preferences and interaction history, then scores candidate events by a
// weighted mix of category/tag/semantic/location/price/virtual/time/
// curation signals.
package cb

import (
	"github.com/eventiq/recoengine/internal/models"
)

// Profile is the per-user content profile built from explicit preferences
// plus learned signal from interaction history.
type Profile struct {
	PreferredCategories map[string]bool
	PreferredTags       map[string]bool
	PreferredLocations  map[string]bool
	OrganizerPrefs      map[string]bool
	// VenuePrefs holds venues the user has previously attended or engaged
	// with; locationScore treats a match as a 1.0, independent of whether
	// the venue falls under an explicit preferred location.
	VenuePrefs map[string]bool
	PriceMin            float64
	PriceMax            float64 // 0 means unbounded
	VirtualPreference   float64
	TextBlobs           []string
}

// BuildProfile constructs a Profile from explicit preferences and the
// user's interaction history, accumulating category/tag/organizer/venue
// preferences and learning virtual_preference.
func BuildProfile(prefs models.UserPreferences, interactions []models.Interaction, events map[string]models.EventFeatures) Profile {
	p := Profile{
		PreferredCategories: map[string]bool{},
		PreferredTags:       map[string]bool{},
		PreferredLocations:  map[string]bool{},
		OrganizerPrefs:      map[string]bool{},
		VenuePrefs:          map[string]bool{},
		VirtualPreference:   0.5,
	}

	for _, c := range prefs.PreferredCategories {
		p.PreferredCategories[c] = true
	}
	for _, i := range prefs.Interests {
		p.PreferredTags[i] = true
	}
	for _, l := range prefs.PreferredLocations {
		p.PreferredLocations[l] = true
	}
	if prefs.PriceMin != nil {
		p.PriceMin = *prefs.PriceMin
	}
	if prefs.PriceMax != nil {
		p.PriceMax = *prefs.PriceMax
	}

	for _, in := range interactions {
		event, ok := events[in.EventID]
		if !ok {
			continue
		}

		weight := in.ProfileWeight()

		if event.Category != "" {
			p.PreferredCategories[event.Category] = true
		}
		for _, t := range event.Tags {
			p.PreferredTags[t] = true
		}
		if event.Organizer != "" {
			p.OrganizerPrefs[event.Organizer] = true
		}
		if event.Venue != "" {
			p.VenuePrefs[event.Venue] = true
		}

		if event.IsVirtual {
			p.VirtualPreference = clip(p.VirtualPreference+0.1*weight, 0, 1)
		} else {
			p.VirtualPreference = clip(p.VirtualPreference-0.1*weight, 0, 1)
		}

		p.TextBlobs = append(p.TextBlobs, event.TextBlob())
	}

	return p
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
