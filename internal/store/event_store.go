package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eventiq/recoengine/internal/errs"
	"github.com/eventiq/recoengine/internal/models"
)

// EventStore is the per-event structured feature store: title, description,
// category, tags, organizer, venue, is_virtual, price, start_time,
// curation_score, image_count, plus the precomputed semantic vector.
// Reads are cached in Redis; the Postgres table is the source of truth.
type EventStore struct {
	pg       *pgxpool.Pool
	redis    *redis.Client
	logger   *logrus.Logger
	cacheTTL time.Duration
}

func NewEventStore(pg *pgxpool.Pool, redisClient *redis.Client, logger *logrus.Logger, cacheTTL time.Duration) *EventStore {
	if cacheTTL == 0 {
		cacheTTL = time.Hour
	}
	return &EventStore{pg: pg, redis: redisClient, logger: logger, cacheTTL: cacheTTL}
}

// Upsert writes or replaces one event's feature record.
func (s *EventStore) Upsert(ctx context.Context, e models.EventFeatures) error {
	vec, err := json.Marshal(e.SemanticVector)
	if err != nil {
		return errs.New(errs.Transient, err)
	}
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return errs.New(errs.Transient, err)
	}

	_, err = s.pg.Exec(ctx, `
		INSERT INTO event_features
			(event_id, title, description, short_desc, category, tags, organizer, venue,
			 venue_lat, venue_lon, is_virtual, price, start_time, curation_score, image_count, semantic_vector)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (event_id) DO UPDATE SET
			title = EXCLUDED.title, description = EXCLUDED.description,
			short_desc = EXCLUDED.short_desc, category = EXCLUDED.category,
			tags = EXCLUDED.tags, organizer = EXCLUDED.organizer, venue = EXCLUDED.venue,
			venue_lat = EXCLUDED.venue_lat, venue_lon = EXCLUDED.venue_lon,
			is_virtual = EXCLUDED.is_virtual, price = EXCLUDED.price,
			start_time = EXCLUDED.start_time, curation_score = EXCLUDED.curation_score,
			image_count = EXCLUDED.image_count, semantic_vector = EXCLUDED.semantic_vector`,
		e.EventID, e.Title, e.Description, e.ShortDesc, e.Category, tags, e.Organizer, e.Venue,
		e.VenueLat, e.VenueLon, e.IsVirtual, e.Price, e.StartTime, e.CurationScore, e.ImageCount, vec,
	)
	if err != nil {
		return errs.New(errs.Transient, err)
	}

	s.invalidate(ctx, e.EventID)
	return nil
}

// Get retrieves one event's features, checking the Redis cache first.
func (s *EventStore) Get(ctx context.Context, eventID string) (models.EventFeatures, error) {
	if cached, ok := s.getCached(ctx, eventID); ok {
		return cached, nil
	}

	row := s.pg.QueryRow(ctx, `
		SELECT event_id, title, description, short_desc, category, tags, organizer, venue,
		       venue_lat, venue_lon, is_virtual, price, start_time, curation_score, image_count, semantic_vector
		FROM event_features WHERE event_id = $1`, eventID)

	e, err := scanEvent(row)
	if err != nil {
		return models.EventFeatures{}, errs.New(errs.Transient, err)
	}

	s.cache(ctx, e)
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (models.EventFeatures, error) {
	var e models.EventFeatures
	var tagsRaw, vecRaw []byte
	if err := row.Scan(&e.EventID, &e.Title, &e.Description, &e.ShortDesc, &e.Category, &tagsRaw,
		&e.Organizer, &e.Venue, &e.VenueLat, &e.VenueLon, &e.IsVirtual, &e.Price, &e.StartTime,
		&e.CurationScore, &e.ImageCount, &vecRaw); err != nil {
		return e, err
	}
	_ = json.Unmarshal(tagsRaw, &e.Tags)
	_ = json.Unmarshal(vecRaw, &e.SemanticVector)
	return e, nil
}

// All returns every event feature record, used to build CF/CB candidate
// pools and the popularity/trending scorers.
func (s *EventStore) All(ctx context.Context) ([]models.EventFeatures, error) {
	rows, err := s.pg.Query(ctx, `
		SELECT event_id, title, description, short_desc, category, tags, organizer, venue,
		       venue_lat, venue_lon, is_virtual, price, start_time, curation_score, image_count, semantic_vector
		FROM event_features`)
	if err != nil {
		return nil, errs.New(errs.Transient, err)
	}
	defer rows.Close()

	var out []models.EventFeatures
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errs.New(errs.Transient, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *EventStore) getCached(ctx context.Context, eventID string) (models.EventFeatures, bool) {
	data, err := s.redis.Get(ctx, s.cacheKey(eventID)).Bytes()
	if err != nil {
		return models.EventFeatures{}, false
	}
	var e models.EventFeatures
	if err := json.Unmarshal(data, &e); err != nil {
		return models.EventFeatures{}, false
	}
	return e, true
}

func (s *EventStore) cache(ctx context.Context, e models.EventFeatures) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, s.cacheKey(e.EventID), data, s.cacheTTL).Err(); err != nil {
		s.logger.WithError(err).Warn("event store: failed to cache event features")
	}
}

func (s *EventStore) invalidate(ctx context.Context, eventID string) {
	s.redis.Del(ctx, s.cacheKey(eventID))
}

func (s *EventStore) cacheKey(eventID string) string {
	return "event:features:" + eventID
}
