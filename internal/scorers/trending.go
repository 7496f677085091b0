package scorers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eventiq/recoengine/internal/models"
)

// Trending surfaces events currently gaining interaction momentum, derived
// from a co-occurrence graph: events that other users interacted with
// alongside events the user has already engaged with. Recency is enforced
// in Cypher by keeping only candidates whose timestamp falls inside a
// lookback window.
type Trending struct {
	driver   neo4j.DriverWithContext
	redis    *redis.Client
	logger   *logrus.Logger
	lookback time.Duration
}

func NewTrending(driver neo4j.DriverWithContext, redisClient *redis.Client, logger *logrus.Logger, lookback time.Duration) *Trending {
	if lookback == 0 {
		lookback = 48 * time.Hour
	}
	return &Trending{driver: driver, redis: redisClient, logger: logger, lookback: lookback}
}

// Score ranks candidate events by recent co-occurrence momentum: the
// number of distinct other users who interacted with both the candidate
// and an event in the user's history, for candidates within the lookback
// window.
func (t *Trending) Score(ctx context.Context, userID string, candidates []models.EventFeatures, k int, exclude map[string]bool) ([]models.Recommendation, error) {
	cacheKey := fmt.Sprintf("trending:%s:%d", userID, k)
	if cached, ok := t.getCached(ctx, cacheKey); ok {
		return filterAndTruncate(cached, exclude, k), nil
	}

	allowed := make(map[string]models.EventFeatures, len(candidates))
	for _, e := range candidates {
		allowed[e.EventID] = e
	}

	session := t.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (u:User {user_id: $userId})-[:INTERACTED]->(seed:Event)
		MATCH (seed)<-[:INTERACTED]-(other:User)-[:INTERACTED]->(candidate:Event)
		WHERE other.user_id <> $userId
		  AND candidate.event_id <> seed.event_id
		  AND candidate.timestamp >= datetime() - duration({hours: $lookbackHours})
		WITH candidate.event_id AS event_id, count(DISTINCT other) AS momentum
		RETURN event_id, momentum
		ORDER BY momentum DESC
		LIMIT $limit`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userId":        userID,
		"lookbackHours": int(t.lookback.Hours()),
		"limit":         k * 3,
	})
	if err != nil {
		return nil, fmt.Errorf("trending: co-occurrence query failed: %w", err)
	}

	type momentum struct {
		eventID string
		count   int64
	}
	var hits []momentum
	var maxCount int64
	for result.Next(ctx) {
		record := result.Record()
		eventID, ok := record.Values[0].(string)
		if !ok {
			continue
		}
		count, _ := record.Values[1].(int64)
		if _, known := allowed[eventID]; !known {
			continue
		}
		hits = append(hits, momentum{eventID: eventID, count: count})
		if count > maxCount {
			maxCount = count
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("trending: result iteration failed: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].count > hits[j].count })

	recs := make([]models.Recommendation, 0, len(hits))
	for _, h := range hits {
		score := 0.0
		if maxCount > 0 {
			score = float64(h.count) / float64(maxCount)
		}
		e := allowed[h.eventID]
		recs = append(recs, models.Recommendation{
			EventID:    h.eventID,
			Score:      score,
			Algorithm:  "trending",
			Reasons:    []string{"Trending among people with similar activity"},
			Confidence: 0.55,
			Title:      e.Title,
			Category:   e.Category,
		})
	}

	t.cache(ctx, cacheKey, recs, 15*time.Minute)
	return filterAndTruncate(recs, exclude, k), nil
}

func filterAndTruncate(recs []models.Recommendation, exclude map[string]bool, k int) []models.Recommendation {
	out := make([]models.Recommendation, 0, k)
	for _, r := range recs {
		if exclude[r.EventID] {
			continue
		}
		out = append(out, r)
		if len(out) == k {
			break
		}
	}
	return out
}

func (t *Trending) getCached(ctx context.Context, key string) ([]models.Recommendation, bool) {
	data, err := t.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var recs []models.Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, false
	}
	return recs, true
}

func (t *Trending) cache(ctx context.Context, key string, recs []models.Recommendation, ttl time.Duration) {
	data, err := json.Marshal(recs)
	if err != nil {
		return
	}
	if err := t.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		t.logger.WithError(err).Warn("trending: failed to cache results")
	}
}
