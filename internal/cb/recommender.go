package cb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/eventiq/recoengine/internal/models"
)

// Weights holds the per-signal weights.
type Weights struct {
	Category    float64
	Tag         float64
	Description float64
	Location    float64
}

func DefaultWeights() Weights {
	return Weights{Category: 0.30, Tag: 0.25, Description: 0.25, Location: 0.20}
}

// Encoder is the subset of the Text Encoder's API the CB recommender needs.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

type Recommender struct {
	encoder Encoder
	weights Weights
}

func New(encoder Encoder, weights Weights) *Recommender {
	return &Recommender{encoder: encoder, weights: weights}
}

// Recommend scores every event in candidates against the user's profile,
// returning the top-K excluding any id in exclude.
func (r *Recommender) Recommend(ctx context.Context, profile Profile, candidates []models.EventFeatures, k int, exclude map[string]bool) ([]models.Recommendation, error) {
	blobVectors, err := r.encodeBlobs(ctx, profile.TextBlobs)
	if err != nil {
		return nil, fmt.Errorf("cb: encoding profile text blobs: %w", err)
	}

	now := time.Now()
	confidence := confidenceFor(profile)

	type scored struct {
		event   models.EventFeatures
		score   float64
		reasons []string
	}

	var scoredEvents []scored
	for _, e := range candidates {
		if exclude[e.EventID] {
			continue
		}

		s := r.weights.Category*categoryScore(profile, e) +
			r.weights.Tag*tagScore(profile, e) +
			r.weights.Description*textScore(blobVectors, e.SemanticVector) +
			r.weights.Location*locationScore(profile, e)

		s *= priceScore(profile, e)
		s *= virtualScore(profile, e)
		s *= timeScore(e, now)
		s *= 0.5 + 0.5*e.CurationScore

		scoredEvents = append(scoredEvents, scored{
			event:   e,
			score:   clip(s, 0, 1),
			reasons: explanationFor(profile, e),
		})
	}

	sort.Slice(scoredEvents, func(i, j int) bool { return scoredEvents[i].score > scoredEvents[j].score })
	if len(scoredEvents) > k {
		scoredEvents = scoredEvents[:k]
	}

	recs := make([]models.Recommendation, 0, len(scoredEvents))
	for _, se := range scoredEvents {
		recs = append(recs, models.Recommendation{
			EventID:    se.event.EventID,
			Score:      se.score,
			Algorithm:  "content",
			Reasons:    se.reasons,
			Confidence: confidence,
			Title:      se.event.Title,
			Category:   se.event.Category,
		})
	}
	return recs, nil
}

func (r *Recommender) encodeBlobs(ctx context.Context, blobs []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(blobs))
	for _, b := range blobs {
		v, err := r.encoder.Encode(ctx, b)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

// confidenceFor adds 0.1 per filled profile axis on a 0.5 base, capped
// at 0.95. Every axis carries the same bonus, the text axis included.
func confidenceFor(p Profile) float64 {
	confidence := 0.5
	if len(p.PreferredCategories) > 0 {
		confidence += 0.1
	}
	if len(p.PreferredTags) > 0 {
		confidence += 0.1
	}
	if len(p.TextBlobs) > 0 {
		confidence += 0.1
	}
	if len(p.PreferredLocations) > 0 {
		confidence += 0.1
	}
	return clip(confidence, 0, 0.95)
}

// explanationFor draws up to 3 reasons from: category match, tag overlap
// (naming the top 1-2), organizer familiarity, virtual/in-person alignment,
// high curation_score.
func explanationFor(p Profile, e models.EventFeatures) []string {
	var reasons []string

	if p.PreferredCategories[e.Category] {
		reasons = append(reasons, fmt.Sprintf("Matches your interest in %s", e.Category))
	}

	var matchingTags []string
	for _, t := range e.Tags {
		if p.PreferredTags[t] {
			matchingTags = append(matchingTags, t)
		}
	}
	if len(matchingTags) == 1 {
		reasons = append(reasons, fmt.Sprintf("Related to %s", matchingTags[0]))
	} else if len(matchingTags) > 1 {
		top := matchingTags
		if len(top) > 2 {
			top = top[:2]
		}
		reasons = append(reasons, fmt.Sprintf("Related to %s", joinComma(top)))
	}

	if p.OrganizerPrefs[e.Organizer] && e.Organizer != "" {
		reasons = append(reasons, fmt.Sprintf("From %s, an organizer you've engaged with before", e.Organizer))
	}

	if e.IsVirtual && p.VirtualPreference > 0.7 {
		reasons = append(reasons, "Virtual event matching your preference")
	} else if !e.IsVirtual && p.VirtualPreference < 0.3 {
		reasons = append(reasons, "In-person event matching your preference")
	}

	if e.CurationScore > 0.8 {
		reasons = append(reasons, "High-quality event based on our content analysis")
	}

	if len(reasons) > 3 {
		reasons = reasons[:3]
	}
	return reasons
}

func joinComma(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ", "
		}
		out += it
	}
	return out
}
