// Package cf implements the CF Recommender: non-negative matrix
// factorization over the user×event implicit-rating matrix, serving
// top-K predicted-rating queries with a popularity fallback.
package cf

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/eventiq/recoengine/internal/errs"
	"github.com/eventiq/recoengine/internal/models"
)

const trainingSeed = 42

// Config holds the training tunables: the minimum history size before
// training is attempted, the latent factor count, and the epoch cap.
type Config struct {
	MinInteractions int
	Factors         int
	Epochs          int
}

func DefaultConfig() Config {
	return Config{MinInteractions: 5, Factors: 50, Epochs: 100}
}

// Model is one trained, immutable CF snapshot. Readers never observe a
// partially-built model: it is only published via Recommender.swap after
// training completes.
type Model struct {
	Version string

	userIndex map[string]int
	eventIdx  map[string]int
	eventIDs  []string // reverse index: column -> event id

	userFactors *mat.Dense // N x F
	itemFactors *mat.Dense // M x F
	userBias    []float64
	itemBias    []float64
	globalBias  float64

	// ratings[i] is the set of column indices user i has interacted with,
	// used to mask already-seen events and as the popularity base.
	ratings    []map[int]float64
	colSums    []float64 // per-event total interaction weight, for popularity fallback
	maxColSum  float64
}

// Recommender owns the current published Model behind an atomic pointer, so
// concurrent inference never observes a half-swapped snapshot.
type Recommender struct {
	current atomic.Pointer[Model]
	cfg     Config
	logger  *logrus.Logger
}

func New(cfg Config, logger *logrus.Logger) *Recommender {
	return &Recommender{cfg: cfg, logger: logger}
}

// IsTrained reports whether any model has been published yet.
func (rec *Recommender) IsTrained() bool {
	return rec.current.Load() != nil
}

// Train builds a new CF snapshot from the full interaction history and, on
// success, atomically publishes it. If there are fewer than
// MinInteractions interactions, training is refused and any previously
// published model (or lack thereof) is left untouched: inference then
// falls back to popularity.
func (rec *Recommender) Train(interactions []models.Interaction, version string) error {
	if len(interactions) < rec.cfg.MinInteractions {
		rec.logger.WithFields(logrus.Fields{
			"count":            len(interactions),
			"min_interactions": rec.cfg.MinInteractions,
		}).Info("cf: too few interactions to train, leaving model untrained")
		return nil
	}

	userIndex := map[string]int{}
	eventIndex := map[string]int{}
	var eventIDs []string

	// Latest timestamp wins for duplicate (user, event) pairs.
	type cell struct {
		rating float64
		ts     int64
	}
	cells := map[[2]int]cell{}

	for _, in := range interactions {
		ui, ok := userIndex[in.UserID]
		if !ok {
			ui = len(userIndex)
			userIndex[in.UserID] = ui
		}
		ei, ok := eventIndex[in.EventID]
		if !ok {
			ei = len(eventIndex)
			eventIndex[in.EventID] = ei
			eventIDs = append(eventIDs, in.EventID)
		}

		key := [2]int{ui, ei}
		ts := in.Timestamp.UnixNano()
		if existing, found := cells[key]; !found || ts >= existing.ts {
			cells[key] = cell{rating: in.DerivedRating(), ts: ts}
		}
	}

	n := len(userIndex)
	m := len(eventIndex)

	r := mat.NewDense(n, m, nil)
	ratings := make([]map[int]float64, n)
	for i := range ratings {
		ratings[i] = map[int]float64{}
	}
	colSums := make([]float64, m)

	var sum float64
	for key, c := range cells {
		r.Set(key[0], key[1], c.rating)
		ratings[key[0]][key[1]] = c.rating
		colSums[key[1]] += c.rating
		sum += c.rating
	}

	globalBias := sum / float64(len(cells))

	userBias := make([]float64, n)
	for i := 0; i < n; i++ {
		var rowSum float64
		for j := 0; j < m; j++ {
			rowSum += r.At(i, j)
		}
		userBias[i] = rowSum/float64(m) - globalBias
	}

	itemBias := make([]float64, m)
	for j := 0; j < m; j++ {
		var colSum float64
		for i := 0; i < n; i++ {
			colSum += r.At(i, j)
		}
		itemBias[j] = colSum/float64(n) - globalBias
	}

	w, h := factorize(r, rec.cfg.Factors, rec.cfg.Epochs, trainingSeed)

	itemFactors := mat.NewDense(m, rec.cfg.Factors, nil)
	itemFactors.Copy(h.T())

	var maxColSum float64
	for _, v := range colSums {
		if v > maxColSum {
			maxColSum = v
		}
	}

	model := &Model{
		Version:     version,
		userIndex:   userIndex,
		eventIdx:    eventIndex,
		eventIDs:    eventIDs,
		userFactors: w,
		itemFactors: itemFactors,
		userBias:    userBias,
		itemBias:    itemBias,
		globalBias:  globalBias,
		ratings:     ratings,
		colSums:     colSums,
		maxColSum:   maxColSum,
	}

	if err := validateModel(model); err != nil {
		rec.logger.WithError(err).WithFields(logrus.Fields{
			"version":  version,
			"critical": true,
		}).Error("cf: rejecting corrupt model snapshot, previous snapshot continues serving")
		return err
	}

	rec.current.Store(model)
	rec.logger.WithFields(logrus.Fields{
		"users":   n,
		"events":  m,
		"version": version,
	}).Info("cf: model trained and published")
	return nil
}

// validateModel checks dimensional consistency (factor matrix shapes,
// bias lengths, index sizes) before a freshly trained snapshot is
// allowed to replace the one currently serving. A snapshot that
// fails this check is never published.
func validateModel(m *Model) error {
	n := len(m.userIndex)
	numEvents := len(m.eventIdx)

	if len(m.eventIDs) != numEvents {
		return errs.New(errs.Fatal, fmt.Errorf("event reverse index has %d entries, want %d", len(m.eventIDs), numEvents))
	}
	if rows, _ := m.userFactors.Dims(); rows != n {
		return errs.New(errs.Fatal, fmt.Errorf("user factors have %d rows, want %d users", rows, n))
	}
	if rows, _ := m.itemFactors.Dims(); rows != numEvents {
		return errs.New(errs.Fatal, fmt.Errorf("item factors have %d rows, want %d events", rows, numEvents))
	}
	if len(m.userBias) != n {
		return errs.New(errs.Fatal, fmt.Errorf("user bias has %d entries, want %d users", len(m.userBias), n))
	}
	if len(m.itemBias) != numEvents {
		return errs.New(errs.Fatal, fmt.Errorf("item bias has %d entries, want %d events", len(m.itemBias), numEvents))
	}
	if len(m.ratings) != n {
		return errs.New(errs.Fatal, fmt.Errorf("ratings index has %d rows, want %d users", len(m.ratings), n))
	}
	if len(m.colSums) != numEvents {
		return errs.New(errs.Fatal, fmt.Errorf("column sums have %d entries, want %d events", len(m.colSums), numEvents))
	}
	return nil
}

// clip bounds v to [lo, hi].
func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PopularityFallback ranks events by total interaction weight (column sum).
// The column sums live in the published model, so it returns nil when no
// CF model has been trained yet.
func (rec *Recommender) PopularityFallback(k int, exclude map[string]bool) []models.Recommendation {
	model := rec.current.Load()
	if model == nil {
		return nil
	}
	return model.popularityFallback(k, exclude)
}

func (m *Model) popularityFallback(k int, exclude map[string]bool) []models.Recommendation {
	type scored struct {
		eventID string
		sum     float64
	}
	var items []scored
	for idx, sum := range m.colSums {
		id := m.eventIDs[idx]
		if exclude[id] {
			continue
		}
		items = append(items, scored{eventID: id, sum: sum})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].sum > items[j].sum })

	if len(items) > k {
		items = items[:k]
	}

	recs := make([]models.Recommendation, 0, len(items))
	for _, it := range items {
		score := 0.0
		if m.maxColSum > 0 {
			score = clip(it.sum/m.maxColSum, 0, 1)
		}
		recs = append(recs, models.Recommendation{
			EventID:    it.eventID,
			Score:      score,
			Algorithm:  "popularity",
			Reasons:    []string{"Popular event among all users"},
			Confidence: 0.6,
		})
	}
	return recs
}

// Recommend serves the top-K predicted-rating recommendations for a user.
// Falls back to popularity when untrained or the user is unknown to the
// model (cold-start / not-yet-retrained user).
func (rec *Recommender) Recommend(userID string, k int, exclude []string) ([]models.Recommendation, error) {
	excludeSet := toSet(exclude)

	model := rec.current.Load()
	if model == nil {
		return rec.PopularityFallback(k, excludeSet), nil
	}

	ui, ok := model.userIndex[userID]
	if !ok {
		return model.popularityFallback(k, excludeSet), nil
	}

	return model.recommendForUser(ui, k, excludeSet), nil
}

func (m *Model) recommendForUser(ui, k int, exclude map[string]bool) []models.Recommendation {
	type scored struct {
		eventID string
		raw     float64
	}

	seen := m.ratings[ui]
	userRow := m.userFactors.RawRowView(ui)

	var items []scored
	for ei, eventID := range m.eventIDs {
		if _, interacted := seen[ei]; interacted {
			continue
		}
		if exclude[eventID] {
			continue
		}

		itemRow := m.itemFactors.RawRowView(ei)
		var dot float64
		for f := range userRow {
			dot += userRow[f] * itemRow[f]
		}
		raw := dot + m.globalBias + m.userBias[ui] + m.itemBias[ei]
		items = append(items, scored{eventID: eventID, raw: raw})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].raw > items[j].raw })
	if len(items) > k {
		items = items[:k]
	}

	interactionCount := len(seen)
	confidence := clip(0.5+float64(interactionCount)/100.0, 0, 0.9)

	recs := make([]models.Recommendation, 0, len(items))
	for _, it := range items {
		recs = append(recs, models.Recommendation{
			EventID:    it.eventID,
			Score:      clip(it.raw/5.0, 0, 1),
			Algorithm:  "collaborative",
			Reasons:    []string{"Users with similar preferences also liked this event"},
			Confidence: confidence,
		})
	}
	return recs
}

// EventInteractionCounts returns each known event's total interaction
// weight, satisfying scorers.InteractionCounter for the standalone
// Popularity Scorer. Returns an empty map if no model has been trained.
func (rec *Recommender) EventInteractionCounts(ctx context.Context) (map[string]float64, error) {
	model := rec.current.Load()
	if model == nil {
		return map[string]float64{}, nil
	}
	counts := make(map[string]float64, len(model.eventIDs))
	for idx, id := range model.eventIDs {
		counts[id] = model.colSums[idx]
	}
	return counts, nil
}

// EventSimilarity returns the cosine similarity between two events' latent
// item factors, used by the similar-events API. Returns an error if either
// event is unknown to the current model.
func (rec *Recommender) EventSimilarity(eventID1, eventID2 string) (float64, error) {
	model := rec.current.Load()
	if model == nil {
		return 0, fmt.Errorf("cf: no model trained")
	}

	i1, ok1 := model.eventIdx[eventID1]
	i2, ok2 := model.eventIdx[eventID2]
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("cf: event not in model index")
	}

	v1 := model.itemFactors.RawRowView(i1)
	v2 := model.itemFactors.RawRowView(i2)
	return cosine(v1, v2), nil
}

func cosine(a, b []float64) float64 {
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

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
