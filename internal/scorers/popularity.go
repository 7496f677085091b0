// Package scorers implements the Popularity / Location / Trending
// fallback and side scorers over the Event Feature Store.
package scorers

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/eventiq/recoengine/internal/models"
)

// InteractionCounter reports total interaction weight per event, used by
// the popularity scorer. The CF Recommender's rating matrix column sums
// are the natural source; this interface decouples scorers from cf to
// avoid an import cycle.
type InteractionCounter interface {
	EventInteractionCounts(ctx context.Context) (map[string]float64, error)
}

type Popularity struct {
	counter InteractionCounter
}

func NewPopularity(counter InteractionCounter) *Popularity {
	return &Popularity{counter: counter}
}

// maxUpcomingWindow bounds how far out an event's start time may be and
// still count as a live popularity candidate; it keeps far-future
// placeholder dates from crowding out events actually happening soon.
const maxUpcomingWindow = 180 * 24 * time.Hour

// Score ranks candidate events by total interaction count, normalized by
// the maximum observed count.
func (p *Popularity) Score(ctx context.Context, candidates []models.EventFeatures, k int, exclude map[string]bool) ([]models.Recommendation, error) {
	counts, err := p.counter.EventInteractionCounts(ctx)
	if err != nil {
		return nil, err
	}

	var max float64
	for _, c := range counts {
		if c > max {
			max = c
		}
	}

	now := time.Now()
	type scored struct {
		event models.EventFeatures
		count float64
	}
	var items []scored
	for _, e := range candidates {
		if exclude[e.EventID] {
			continue
		}
		if !e.StartTime.IsZero() && !upcomingWithin(e, now, maxUpcomingWindow) {
			continue
		}
		items = append(items, scored{event: e, count: counts[e.EventID]})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].count > items[j].count })
	if len(items) > k {
		items = items[:k]
	}

	recs := make([]models.Recommendation, 0, len(items))
	for _, it := range items {
		score := 0.0
		if max > 0 {
			score = it.count / max
		}
		recs = append(recs, models.Recommendation{
			EventID:    it.event.EventID,
			Score:      score,
			Algorithm:  "popularity",
			Reasons:    []string{"Popular event among all users"},
			Confidence: 0.6,
			Title:      it.event.Title,
			Category:   it.event.Category,
		})
	}
	return recs, nil
}

// Location ranks candidate events by proximity to a requested geo point.
type Location struct{}

func NewLocation() *Location { return &Location{} }

const earthRadiusKm = 6371.0
const maxRelevantDistanceKm = 100.0

func (l *Location) Score(candidates []models.EventFeatures, point models.GeoPoint, k int, exclude map[string]bool) []models.Recommendation {
	type scored struct {
		event    models.EventFeatures
		distance float64
	}
	var items []scored
	for _, e := range candidates {
		if exclude[e.EventID] || e.IsVirtual {
			continue
		}
		if e.VenueLat == 0 && e.VenueLon == 0 {
			continue
		}
		d := haversineKm(point.Lat, point.Lon, e.VenueLat, e.VenueLon)
		if d > maxRelevantDistanceKm {
			continue
		}
		items = append(items, scored{event: e, distance: d})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].distance < items[j].distance })
	if len(items) > k {
		items = items[:k]
	}

	recs := make([]models.Recommendation, 0, len(items))
	for _, it := range items {
		recs = append(recs, models.Recommendation{
			EventID:    it.event.EventID,
			Score:      1 - it.distance/maxRelevantDistanceKm,
			Algorithm:  "location",
			Reasons:    []string{"Happening near you"},
			Confidence: 0.6,
			Title:      it.event.Title,
			Category:   it.event.Category,
		})
	}
	return recs
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// upcomingWithin reports whether an event starts within the given window
// from now. The popularity scorer uses it to drop events with a known
// start time that has already passed or that lies implausibly far out;
// events with no recorded start time are left for the caller to decide.
func upcomingWithin(e models.EventFeatures, now time.Time, window time.Duration) bool {
	return e.StartTime.After(now) && e.StartTime.Before(now.Add(window))
}
