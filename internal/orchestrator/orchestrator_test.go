package orchestrator

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventiq/recoengine/internal/cb"
	"github.com/eventiq/recoengine/internal/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(noopWriter{})
	return l
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

// fakeCF reports itself trained only when its trained field is set; its
// popularity fallback returns the canned fallback list.
type fakeCF struct {
	trained    bool
	recs       []models.Recommendation
	err        error
	fallback   []models.Recommendation
	similarity float64
	simErr     error
}

func (f *fakeCF) IsTrained() bool { return f.trained }
func (f *fakeCF) Recommend(userID string, k int, exclude []string) ([]models.Recommendation, error) {
	return f.recs, f.err
}
func (f *fakeCF) PopularityFallback(k int, exclude map[string]bool) []models.Recommendation {
	return f.fallback
}
func (f *fakeCF) EventSimilarity(eventID1, eventID2 string) (float64, error) {
	return f.similarity, f.simErr
}

type fakeCB struct {
	recs []models.Recommendation
	err  error
}

func (f *fakeCB) Recommend(ctx context.Context, profile cb.Profile, candidates []models.EventFeatures, k int, exclude map[string]bool) ([]models.Recommendation, error) {
	return f.recs, f.err
}

type fakePopularity struct {
	recs []models.Recommendation
	err  error
}

func (f *fakePopularity) Score(ctx context.Context, candidates []models.EventFeatures, k int, exclude map[string]bool) ([]models.Recommendation, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Recommendation, 0, len(f.recs))
	for _, r := range f.recs {
		if !exclude[r.EventID] {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeLocation struct{ recs []models.Recommendation }

func (f *fakeLocation) Score(candidates []models.EventFeatures, point models.GeoPoint, k int, exclude map[string]bool) []models.Recommendation {
	return f.recs
}

type fakeTrending struct{ recs []models.Recommendation }

func (f *fakeTrending) Score(ctx context.Context, userID string, candidates []models.EventFeatures, k int, exclude map[string]bool) ([]models.Recommendation, error) {
	return f.recs, nil
}

type fakeEvents struct{ events []models.EventFeatures }

func (f *fakeEvents) All(ctx context.Context) ([]models.EventFeatures, error) { return f.events, nil }

type fakeInteractions struct{ byUser map[string][]models.Interaction }

func (f *fakeInteractions) FilterByUser(ctx context.Context, userID string) ([]models.Interaction, error) {
	return f.byUser[userID], nil
}

type fakePrefs struct{ byUser map[string]models.UserPreferences }

func (f *fakePrefs) Get(ctx context.Context, userID string) (models.UserPreferences, error) {
	return f.byUser[userID], nil
}

func popularityCatalog() []models.EventFeatures {
	return []models.EventFeatures{
		{EventID: "e1", Title: "Tech Meetup", Category: "tech"},
		{EventID: "e2", Title: "Jazz Night", Category: "music"},
		{EventID: "e3", Title: "Food Fest", Category: "food"},
		{EventID: "e4", Title: "Art Walk", Category: "art"},
		{EventID: "e5", Title: "Dev Conf", Category: "tech"},
	}
}

func popularityRecs() []models.Recommendation {
	return []models.Recommendation{
		{EventID: "e1", Score: 1.0, Algorithm: "popularity", Reasons: []string{"Popular event among all users"}, Confidence: 0.6, Title: "Tech Meetup", Category: "tech"},
		{EventID: "e5", Score: 0.8, Algorithm: "popularity", Reasons: []string{"Popular event among all users"}, Confidence: 0.6, Title: "Dev Conf", Category: "tech"},
		{EventID: "e2", Score: 0.6, Algorithm: "popularity", Reasons: []string{"Popular event among all users"}, Confidence: 0.6, Title: "Jazz Night", Category: "music"},
		{EventID: "e3", Score: 0.4, Algorithm: "popularity", Reasons: []string{"Popular event among all users"}, Confidence: 0.6, Title: "Food Fest", Category: "food"},
		{EventID: "e4", Score: 0.2, Algorithm: "popularity", Reasons: []string{"Popular event among all users"}, Confidence: 0.6, Title: "Art Walk", Category: "art"},
	}
}

func newTestOrchestrator(cfRecs, cbRecs, popRecs []models.Recommendation, prefs map[string]models.UserPreferences, interactions map[string][]models.Interaction) *Orchestrator {
	return New(
		Config{CFMinInteractions: 5, DiversityFactor: 0, ExplorationFactor: 0, ModelVersion: "test-1"},
		&fakeCF{trained: cfRecs != nil, recs: cfRecs, fallback: popRecs},
		&fakeCB{recs: cbRecs},
		&fakePopularity{recs: popRecs},
		&fakeLocation{},
		&fakeTrending{},
		&fakeEvents{events: popularityCatalog()},
		&fakeInteractions{byUser: interactions},
		&fakePrefs{byUser: prefs},
		testLogger(),
	)
}

// Cold-start basic: no interactions, no preferences. CF and
// CB must contribute nothing, and popularity must carry the response.
func TestOrchestrator_ColdStartBasic(t *testing.T) {
	o := newTestOrchestrator(nil, nil, popularityRecs(), nil, nil)

	resp, err := o.Recommend(context.Background(), models.RecommendationRequest{
		UserID: "u0",
		Count:  5,
	})
	require.NoError(t, err)

	assert.True(t, resp.ColdStartUser)
	assert.True(t, resp.FallbackUsed)
	assert.Len(t, resp.Recommendations, 5)
	for i, rec := range resp.Recommendations {
		assert.Equal(t, i+1, rec.Rank)
	}
	// descending popularity order preserved
	for i := 1; i < len(resp.Recommendations); i++ {
		assert.GreaterOrEqual(t, resp.Recommendations[i-1].Score, resp.Recommendations[i].Score)
	}
}

// Cold-start user with a tech preference, competing against
// three equally-popular tech events and three equally-popular music
// events. CB's content match should push tech events to the top.
func TestOrchestrator_HybridColdAndContent(t *testing.T) {
	catalog := []models.EventFeatures{
		{EventID: "t1", Title: "Tech Meetup", Category: "tech"},
		{EventID: "t2", Title: "Dev Conf", Category: "tech"},
		{EventID: "t3", Title: "Hackathon", Category: "tech"},
		{EventID: "m1", Title: "Jazz Night", Category: "music"},
		{EventID: "m2", Title: "Rock Show", Category: "music"},
		{EventID: "m3", Title: "Open Mic", Category: "music"},
	}
	equalPop := func(id, title, category string) models.Recommendation {
		return models.Recommendation{EventID: id, Score: 0.5, Algorithm: "popularity", Confidence: 0.6, Title: title, Category: category, Reasons: []string{"Popular event among all users"}}
	}
	popRecs := []models.Recommendation{
		equalPop("t1", "Tech Meetup", "tech"),
		equalPop("t2", "Dev Conf", "tech"),
		equalPop("t3", "Hackathon", "tech"),
		equalPop("m1", "Jazz Night", "music"),
		equalPop("m2", "Rock Show", "music"),
		equalPop("m3", "Open Mic", "music"),
	}
	cbRecs := []models.Recommendation{
		{EventID: "t1", Score: 0.9, Algorithm: "content", Reasons: []string{"Matches your interest in tech"}, Confidence: 0.6, Title: "Tech Meetup", Category: "tech"},
		{EventID: "t2", Score: 0.9, Algorithm: "content", Reasons: []string{"Matches your interest in tech"}, Confidence: 0.6, Title: "Dev Conf", Category: "tech"},
		{EventID: "t3", Score: 0.9, Algorithm: "content", Reasons: []string{"Matches your interest in tech"}, Confidence: 0.6, Title: "Hackathon", Category: "tech"},
	}
	prefs := map[string]models.UserPreferences{
		"u_new": {UserID: "u_new", PreferredCategories: []string{"tech"}},
	}

	o := New(
		Config{CFMinInteractions: 5, ModelVersion: "test-1"},
		&fakeCF{trained: false, fallback: popRecs},
		&fakeCB{recs: cbRecs},
		&fakePopularity{recs: popRecs},
		&fakeLocation{},
		&fakeTrending{},
		&fakeEvents{events: catalog},
		&fakeInteractions{byUser: nil},
		&fakePrefs{byUser: prefs},
		testLogger(),
	)

	resp, err := o.Recommend(context.Background(), models.RecommendationRequest{
		UserID: "u_new",
		Count:  4,
	})
	require.NoError(t, err)
	assert.True(t, resp.ColdStartUser)

	techCount := 0
	for _, rec := range resp.Recommendations {
		if rec.Category == "tech" {
			techCount++
			assert.Contains(t, rec.Reasons, "Matches your interest in tech")
		}
	}
	assert.GreaterOrEqual(t, techCount, 3)
}

func TestOrchestrator_TotalCollapseFallsBackToPopularity(t *testing.T) {
	o := newTestOrchestrator(nil, nil, nil, nil, nil)
	o.cf = &fakeCF{trained: false, fallback: popularityRecs()}
	o.cb = &fakeCB{recs: nil}
	o.popularity = &fakePopularity{recs: nil}

	resp, err := o.Recommend(context.Background(), models.RecommendationRequest{UserID: "u0", Count: 3})
	require.NoError(t, err)
	assert.Len(t, resp.Recommendations, 3)
	assert.Equal(t, "popularity", resp.AlgorithmUsed)
}

func TestOrchestrator_ActiveUserUsesCollaborative(t *testing.T) {
	cfRecs := []models.Recommendation{
		{EventID: "e1", Score: 0.95, Algorithm: "collaborative", Reasons: []string{"Similar users also liked this"}, Confidence: 0.8, Title: "Tech Meetup", Category: "tech"},
	}
	interactions := map[string][]models.Interaction{
		"u_active": make([]models.Interaction, 25),
	}

	o := newTestOrchestrator(cfRecs, nil, popularityRecs(), nil, interactions)

	resp, err := o.Recommend(context.Background(), models.RecommendationRequest{UserID: "u_active", Count: 5})
	require.NoError(t, err)
	assert.False(t, resp.ColdStartUser)
	assert.False(t, resp.FallbackUsed)
}

func TestOrchestrator_SimilarEvents(t *testing.T) {
	catalog := []models.EventFeatures{
		{EventID: "t1", Title: "Tech Meetup", Category: "tech", Organizer: "OrgA", SemanticVector: []float64{1, 0, 0}},
		{EventID: "t2", Title: "Dev Conf", Category: "tech", Organizer: "OrgA", SemanticVector: []float64{0.9, 0.1, 0}},
		{EventID: "m1", Title: "Jazz Night", Category: "music", Organizer: "OrgB", SemanticVector: []float64{0, 0, 1}},
	}
	o := New(
		Config{CFMinInteractions: 5, ModelVersion: "test-1"},
		&fakeCF{trained: false},
		&fakeCB{},
		&fakePopularity{},
		&fakeLocation{},
		&fakeTrending{},
		&fakeEvents{events: catalog},
		&fakeInteractions{},
		&fakePrefs{},
		testLogger(),
	)

	recs, err := o.SimilarEvents(context.Background(), models.SimilarEventsRequest{EventID: "t1", Count: 5})
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "t2", recs[0].EventID)

	excluded, err := o.SimilarEvents(context.Background(), models.SimilarEventsRequest{
		EventID:              "t1",
		Count:                5,
		ExcludeSameOrganizer: true,
	})
	require.NoError(t, err)
	for _, r := range excluded {
		assert.NotEqual(t, "t2", r.EventID)
	}
}

func TestOrchestrator_ExcludesRequestedEvents(t *testing.T) {
	o := newTestOrchestrator(nil, nil, popularityRecs(), nil, nil)
	resp, err := o.Recommend(context.Background(), models.RecommendationRequest{
		UserID:        "u0",
		Count:         5,
		ExcludeEvents: []string{"e1", "e5"},
	})
	require.NoError(t, err)
	for _, rec := range resp.Recommendations {
		assert.NotEqual(t, "e1", rec.EventID)
		assert.NotEqual(t, "e5", rec.EventID)
	}
}
