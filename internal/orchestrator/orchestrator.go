// Package orchestrator implements the Hybrid Orchestrator: it classifies
// the requesting user, gathers candidates from every scoring algorithm
// concurrently, merges them by weighted-score aggregation, re-ranks for
// diversity, injects exploration, and assembles the final ranked
// response.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eventiq/recoengine/internal/cb"
	"github.com/eventiq/recoengine/internal/diversity"
	"github.com/eventiq/recoengine/internal/errs"
	"github.com/eventiq/recoengine/internal/models"
)

// CFSource is the subset of the CF Recommender's API the orchestrator
// needs: per-user recommendations plus a popularity fallback for
// cold-start users and interaction-store failures.
type CFSource interface {
	IsTrained() bool
	Recommend(userID string, k int, exclude []string) ([]models.Recommendation, error)
	PopularityFallback(k int, exclude map[string]bool) []models.Recommendation
	EventSimilarity(eventID1, eventID2 string) (float64, error)
}

// CBSource is the subset of the CB Recommender's API the orchestrator
// needs.
type CBSource interface {
	Recommend(ctx context.Context, profile cb.Profile, candidates []models.EventFeatures, k int, exclude map[string]bool) ([]models.Recommendation, error)
}

// PopularityScorer, LocationScorer and TrendingScorer mirror the
// scorers package's exported Score methods, kept as narrow interfaces
// so the orchestrator can be exercised against fakes.
type PopularityScorer interface {
	Score(ctx context.Context, candidates []models.EventFeatures, k int, exclude map[string]bool) ([]models.Recommendation, error)
}

type LocationScorer interface {
	Score(candidates []models.EventFeatures, point models.GeoPoint, k int, exclude map[string]bool) []models.Recommendation
}

type TrendingScorer interface {
	Score(ctx context.Context, userID string, candidates []models.EventFeatures, k int, exclude map[string]bool) ([]models.Recommendation, error)
}

// EventSource supplies the candidate catalog.
type EventSource interface {
	All(ctx context.Context) ([]models.EventFeatures, error)
}

// InteractionSource supplies a user's interaction history.
type InteractionSource interface {
	FilterByUser(ctx context.Context, userID string) ([]models.Interaction, error)
}

// PreferencesSource supplies a user's explicit preferences. Missing
// preferences are treated as a zero-value UserPreferences, not an error,
// since cold-start users have none on record.
type PreferencesSource interface {
	Get(ctx context.Context, userID string) (models.UserPreferences, error)
}

// Config carries the orchestrator's tunables, lifted from
// config.AlgorithmConfig plus the model version string reported in
// response metadata.
type Config struct {
	CFMinInteractions int
	DiversityFactor   float64
	ExplorationFactor float64
	EnableLocation    bool
	EnableTrending    bool
	CandidateTimeout  time.Duration
	ModelVersion      string
}

// Orchestrator is the Hybrid Orchestrator
type Orchestrator struct {
	cfg Config

	cf         CFSource
	cb         CBSource
	popularity PopularityScorer
	location   LocationScorer
	trending   TrendingScorer

	events        EventSource
	interactions  InteractionSource
	preferences   PreferencesSource

	logger *logrus.Logger
}

func New(
	cfg Config,
	cfRec CFSource,
	cbRec CBSource,
	popularity PopularityScorer,
	location LocationScorer,
	trending TrendingScorer,
	events EventSource,
	interactions InteractionSource,
	preferences PreferencesSource,
	logger *logrus.Logger,
) *Orchestrator {
	if cfg.CandidateTimeout <= 0 {
		cfg.CandidateTimeout = 30 * time.Second
	}
	return &Orchestrator{
		cfg:          cfg,
		cf:           cfRec,
		cb:           cbRec,
		popularity:   popularity,
		location:     location,
		trending:     trending,
		events:       events,
		interactions: interactions,
		preferences:  preferences,
		logger:       logger,
	}
}

// algorithmOrder fixes the iteration order used when picking the
// dominant algorithm, so a tie always resolves the same way.
var algorithmOrder = []string{algCollaborative, algContent, algPopularity, "location", "trending"}

// candidateResult is one algorithm's gathered candidates, always
// present in the map even on failure (as an empty slice) so one failed
// algorithm never hides the others' results.
type candidateResult struct {
	algorithm string
	items     []models.Recommendation
	err       error
}

// Recommend runs the full pipeline: classify, gather candidates
// concurrently, merge by weighted score, diversify, inject exploration,
// and assemble the response.
func (o *Orchestrator) Recommend(ctx context.Context, req models.RecommendationRequest) (models.RecommendationResponse, error) {
	if err := req.Validate(); err != nil {
		return models.RecommendationResponse{}, err
	}

	start := time.Now()

	interactions, err := o.interactions.FilterByUser(ctx, req.UserID)
	if err != nil {
		o.logger.WithError(err).WithField("user_id", req.UserID).Warn("orchestrator: failed to load interaction history, treating as cold start")
		interactions = nil
	}

	prefs, err := o.preferences.Get(ctx, req.UserID)
	if err != nil {
		o.logger.WithError(err).WithField("user_id", req.UserID).Warn("orchestrator: failed to load user preferences")
		prefs = models.UserPreferences{UserID: req.UserID}
	}

	tier := ClassifyUser(len(interactions), o.cfg.CFMinInteractions)
	coldStart := tier == models.TierColdStart
	fallbackUsed := len(interactions) < o.cfg.CFMinInteractions

	events, err := o.events.All(ctx)
	if err != nil {
		return models.RecommendationResponse{}, err
	}
	eventsByID := make(map[string]models.EventFeatures, len(events))
	for _, e := range events {
		eventsByID[e.EventID] = e
	}

	exclude := toExcludeSet(req.ExcludeEvents)
	count := req.Count
	if count <= 0 {
		count = 20
	}

	results := o.gatherCandidates(ctx, req, tier, prefs, interactions, events, eventsByID, exclude, count)

	merged, dominant := o.merge(results, tier)

	// Total collapse: every scorer failed or returned nothing. Fall back
	// to the CF Recommender's own popularity fallback rather than
	// returning an empty list while any data exists to rank.
	if len(merged) == 0 {
		merged = o.cf.PopularityFallback(count, exclude)
		dominant = algPopularity
	}

	diversityFactor := req.DiversityFactor
	if diversityFactor == 0 {
		diversityFactor = o.cfg.DiversityFactor
	}
	selected := diversity.Diversify(merged, count, diversityFactor)

	if o.cfg.ExplorationFactor > 0 {
		popPool := results[algPopularity].items
		selected = diversity.InjectExploration(selected, popPool, o.cfg.ExplorationFactor)
	}

	if len(selected) > count {
		selected = selected[:count]
	}
	for i := range selected {
		selected[i].Rank = i + 1
	}

	resp := models.RecommendationResponse{
		UserID:                  req.UserID,
		Recommendations:         selected,
		TotalCount:              len(selected),
		AlgorithmUsed:           dominant,
		Context:                 req.Context,
		GeneratedAt:             time.Now(),
		ProcessingTimeMs:        time.Since(start).Milliseconds(),
		ModelVersion:            o.cfg.ModelVersion,
		UserProfileCompleteness: models.ProfileCompleteness(prefs, len(interactions)),
		ColdStartUser:           coldStart,
		FallbackUsed:            fallbackUsed,
		ABTestVariant:           abTestVariant(req.UserID),
	}
	return resp, nil
}

// gatherCandidates runs every applicable algorithm concurrently under a
// shared soft deadline. Each algorithm's failure is caught and logged,
// and yields an empty candidate list rather than failing the request.
func (o *Orchestrator) gatherCandidates(
	ctx context.Context,
	req models.RecommendationRequest,
	tier models.UserTier,
	prefs models.UserPreferences,
	interactions []models.Interaction,
	events []models.EventFeatures,
	eventsByID map[string]models.EventFeatures,
	exclude map[string]bool,
	count int,
) map[string]candidateResult {
	gatherCtx, cancel := context.WithTimeout(ctx, o.cfg.CandidateTimeout)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make(map[string]candidateResult, 5)

	// record stores one algorithm's outcome and logs its error, if any, at
	// a level that depends on the error kind: a ModelNotReady downgrade is
	// an expected, unremarkable event (logged at Info), a ComponentFailure
	// is the failure-isolation path (logged at Warn, the
	// other algorithms still proceed), and anything else is unexpected.
	record := func(alg string, items []models.Recommendation, err error) {
		mu.Lock()
		results[alg] = candidateResult{algorithm: alg, items: items, err: err}
		mu.Unlock()
		switch {
		case err == nil:
		case errs.Is(err, errs.ModelNotReady):
			o.logger.WithField("algorithm", alg).Info("orchestrator: model not ready, downgrading to fallback")
		case errs.Is(err, errs.ComponentFailure):
			o.logger.WithError(err).WithField("algorithm", alg).Warn("orchestrator: candidate algorithm failed")
		default:
			o.logger.WithError(err).WithField("algorithm", alg).Error("orchestrator: unexpected candidate algorithm error")
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if tier == models.TierColdStart || !o.cf.IsTrained() {
			record(algCollaborative, nil, errs.New(errs.ModelNotReady, fmt.Errorf("no trained CF model for user %q", req.UserID)))
			return
		}
		items, err := o.cf.Recommend(req.UserID, minInt(count*2, 50), req.ExcludeEvents)
		if err != nil {
			record(algCollaborative, nil, errs.NewForAlgorithm(errs.ComponentFailure, algCollaborative, err))
			return
		}
		record(algCollaborative, items, nil)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		profile := cb.BuildProfile(prefs, interactions, eventsByID)
		items, err := o.cb.Recommend(gatherCtx, profile, events, minInt(count*2, 50), exclude)
		if err != nil {
			record(algContent, nil, errs.NewForAlgorithm(errs.ComponentFailure, algContent, err))
			return
		}
		record(algContent, items, nil)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		items, err := o.popularity.Score(gatherCtx, events, minInt(count, 20), exclude)
		if err != nil {
			record(algPopularity, nil, errs.NewForAlgorithm(errs.ComponentFailure, algPopularity, err))
			return
		}
		record(algPopularity, items, nil)
	}()

	if req.Location != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items := o.location.Score(events, *req.Location, minInt(count, 15), exclude)
			record("location", items, nil)
		}()
	}

	if o.cfg.EnableTrending && o.trending != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := o.trending.Score(gatherCtx, req.UserID, events, minInt(count/2, 10), exclude)
			if err != nil {
				record("trending", nil, errs.NewForAlgorithm(errs.ComponentFailure, "trending", err))
				return
			}
			record("trending", items, nil)
		}()
	}

	wg.Wait()
	return results
}

// merge combines every algorithm's candidates by weighted-score
// aggregation and reports the dominant algorithm, the one
// that contributed the largest candidate count.
func (o *Orchestrator) merge(results map[string]candidateResult, tier models.UserTier) ([]models.Recommendation, string) {
	cfEmpty := len(results[algCollaborative].items) == 0
	cbEmpty := len(results[algContent].items) == 0
	weights := adjustWeights(tier, cfEmpty, cbEmpty)

	type accumulator struct {
		total      float64
		reasons    map[string]bool
		confidence float64
		title      string
		category   string
	}
	acc := make(map[string]*accumulator)

	var dominantAlg string
	var dominantCount int

	// Iterate a fixed algorithm order so a tie in candidate count always
	// resolves to the same dominant algorithm, independent of Go's
	// randomized map iteration.
	for _, alg := range algorithmOrder {
		res, ok := results[alg]
		if !ok {
			continue
		}
		if len(res.items) > dominantCount {
			dominantCount = len(res.items)
			dominantAlg = alg
		}

		weight := weights[alg] // 0 for algorithms outside the weight table (location, trending)
		for _, item := range res.items {
			a, ok := acc[item.EventID]
			if !ok {
				a = &accumulator{reasons: map[string]bool{}, title: item.Title, category: item.Category}
				acc[item.EventID] = a
			}
			a.total += item.Score * weight * item.Confidence
			for _, r := range item.Reasons {
				a.reasons[r] = true
			}
			if item.Confidence > a.confidence {
				a.confidence = item.Confidence
			}
		}
	}

	merged := make([]models.Recommendation, 0, len(acc))
	for eventID, a := range acc {
		reasons := make([]string, 0, len(a.reasons))
		for r := range a.reasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		merged = append(merged, models.Recommendation{
			EventID:    eventID,
			Score:      clip(a.total, 0, 1),
			Algorithm:  algHybrid,
			Reasons:    reasons,
			Confidence: a.confidence,
			Title:      a.title,
			Category:   a.category,
		})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].EventID < merged[j].EventID
	})

	return merged, dominantAlg
}

// SimilarEvents serves the similar-events API: for each candidate event it
// blends the CF Recommender's latent-factor cosine similarity with the CB
// Recommender's semantic-vector/category/tag similarity, defaulting to the
// CB score alone when CF has no trained model or no index entry for either
// event.
func (o *Orchestrator) SimilarEvents(ctx context.Context, req models.SimilarEventsRequest) ([]models.Recommendation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	events, err := o.events.All(ctx)
	if err != nil {
		return nil, err
	}

	var seed models.EventFeatures
	found := false
	for _, e := range events {
		if e.EventID == req.EventID {
			seed = e
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("orchestrator: event %q not found", req.EventID)
	}

	count := req.Count
	if count <= 0 {
		count = 10
	}

	type scored struct {
		event models.EventFeatures
		score float64
	}
	var candidates []scored
	for _, e := range events {
		if e.EventID == seed.EventID {
			continue
		}
		if req.ExcludeSameOrganizer && seed.Organizer != "" && e.Organizer == seed.Organizer {
			continue
		}

		cbScore := cb.SimilarScore(seed, e)
		score := cbScore
		if o.cf.IsTrained() {
			if cfScore, err := o.cf.EventSimilarity(seed.EventID, e.EventID); err == nil {
				score = 0.5*cfScore + 0.5*cbScore
			}
		}

		if score < req.MinSimilarityScore {
			continue
		}
		candidates = append(candidates, scored{event: e, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].event.EventID < candidates[j].event.EventID
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}

	out := make([]models.Recommendation, 0, len(candidates))
	for i, c := range candidates {
		out = append(out, models.Recommendation{
			EventID:    c.event.EventID,
			Score:      clip(c.score, 0, 1),
			Algorithm:  "similar_events",
			Reasons:    []string{fmt.Sprintf("Similar to %s", seed.Title)},
			Confidence: 0.7,
			Rank:       i + 1,
			Title:      c.event.Title,
			Category:   c.event.Category,
		})
	}
	return out, nil
}

func toExcludeSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
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
