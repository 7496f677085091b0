package scorers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventiq/recoengine/internal/models"
)

type fakeCounter struct {
	counts map[string]float64
}

func (f fakeCounter) EventInteractionCounts(ctx context.Context) (map[string]float64, error) {
	return f.counts, nil
}

func TestPopularity_RanksByCountAndNormalizes(t *testing.T) {
	p := NewPopularity(fakeCounter{counts: map[string]float64{"e1": 10, "e2": 40, "e3": 20}})

	candidates := []models.EventFeatures{
		{EventID: "e1", Title: "A"},
		{EventID: "e2", Title: "B"},
		{EventID: "e3", Title: "C"},
	}

	recs, err := p.Score(context.Background(), candidates, 2, map[string]bool{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "e2", recs[0].EventID)
	assert.Equal(t, 1.0, recs[0].Score)
	assert.Equal(t, "e3", recs[1].EventID)
}

func TestPopularity_ExcludesRequestedEvents(t *testing.T) {
	p := NewPopularity(fakeCounter{counts: map[string]float64{"e1": 10, "e2": 40}})
	candidates := []models.EventFeatures{{EventID: "e1"}, {EventID: "e2"}}

	recs, err := p.Score(context.Background(), candidates, 5, map[string]bool{"e2": true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "e1", recs[0].EventID)
}

func TestLocation_RanksByDistanceAndExcludesVirtual(t *testing.T) {
	l := NewLocation()
	point := models.GeoPoint{Lat: 40.7128, Lon: -74.0060} // NYC

	candidates := []models.EventFeatures{
		{EventID: "near", VenueLat: 40.73, VenueLon: -73.99},
		{EventID: "far", VenueLat: 34.05, VenueLon: -118.24}, // LA, > 100km away
		{EventID: "virtual", IsVirtual: true, VenueLat: 40.72, VenueLon: -74.0},
		{EventID: "no_coords"},
	}

	recs := l.Score(candidates, point, 5, map[string]bool{})
	require.Len(t, recs, 1)
	assert.Equal(t, "near", recs[0].EventID)
}

func TestHaversineKm_ZeroForSamePoint(t *testing.T) {
	d := haversineKm(40.7128, -74.0060, 40.7128, -74.0060)
	assert.InDelta(t, 0.0, d, 0.0001)
}

func TestPopularity_FiltersOutEventsThatAlreadyStarted(t *testing.T) {
	p := NewPopularity(fakeCounter{counts: map[string]float64{"past": 100, "upcoming": 10, "unknown": 5}})
	now := time.Now()

	candidates := []models.EventFeatures{
		{EventID: "past", StartTime: now.Add(-24 * time.Hour)},
		{EventID: "upcoming", StartTime: now.Add(24 * time.Hour)},
		{EventID: "unknown"},
	}

	recs, err := p.Score(context.Background(), candidates, 5, map[string]bool{})
	require.NoError(t, err)

	ids := make(map[string]bool, len(recs))
	for _, r := range recs {
		ids[r.EventID] = true
	}
	assert.False(t, ids["past"], "event that already started should be filtered out")
	assert.True(t, ids["upcoming"])
	assert.True(t, ids["unknown"], "events with no recorded start time should not be filtered")
}

func TestUpcomingWithin(t *testing.T) {
	now := time.Now()
	e := models.EventFeatures{StartTime: now.Add(2 * time.Hour)}
	assert.True(t, upcomingWithin(e, now, 24*time.Hour))
	assert.False(t, upcomingWithin(e, now, time.Hour))
}
