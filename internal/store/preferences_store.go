package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eventiq/recoengine/internal/errs"
	"github.com/eventiq/recoengine/internal/models"
)

// PreferencesStore is the explicit-preferences half of the user profile:
// categories, locations, price bounds and interests a user has set
// directly, as opposed to the implicit profile the CB Recommender derives
// from interaction history. Reads are cached in Redis like EventStore;
// a user with no row on record is not an error, it is a cold-start user.
type PreferencesStore struct {
	pg       *pgxpool.Pool
	redis    *redis.Client
	logger   *logrus.Logger
	cacheTTL time.Duration
}

func NewPreferencesStore(pg *pgxpool.Pool, redisClient *redis.Client, logger *logrus.Logger, cacheTTL time.Duration) *PreferencesStore {
	if cacheTTL == 0 {
		cacheTTL = time.Hour
	}
	return &PreferencesStore{pg: pg, redis: redisClient, logger: logger, cacheTTL: cacheTTL}
}

// Upsert writes or replaces one user's preference record.
func (s *PreferencesStore) Upsert(ctx context.Context, p models.UserPreferences) error {
	categories, err := json.Marshal(p.PreferredCategories)
	if err != nil {
		return errs.New(errs.Transient, err)
	}
	locations, err := json.Marshal(p.PreferredLocations)
	if err != nil {
		return errs.New(errs.Transient, err)
	}
	interests, err := json.Marshal(p.Interests)
	if err != nil {
		return errs.New(errs.Transient, err)
	}
	avoid, err := json.Marshal(p.AvoidCategories)
	if err != nil {
		return errs.New(errs.Transient, err)
	}

	_, err = s.pg.Exec(ctx, `
		INSERT INTO user_preferences
			(user_id, preferred_categories, preferred_locations, price_min, price_max, interests, avoid_categories, virtual_preference)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (user_id) DO UPDATE SET
			preferred_categories = EXCLUDED.preferred_categories,
			preferred_locations = EXCLUDED.preferred_locations,
			price_min = EXCLUDED.price_min, price_max = EXCLUDED.price_max,
			interests = EXCLUDED.interests, avoid_categories = EXCLUDED.avoid_categories,
			virtual_preference = EXCLUDED.virtual_preference`,
		p.UserID, categories, locations, p.PriceMin, p.PriceMax, interests, avoid, p.VirtualPreference,
	)
	if err != nil {
		return errs.New(errs.Transient, err)
	}
	s.invalidate(ctx, p.UserID)
	return nil
}

// Get returns a user's preferences, or, when the user has none on record,
// a default UserPreferences (not an error) carrying the user ID and a
// neutral VirtualPreference of 0.5.
func (s *PreferencesStore) Get(ctx context.Context, userID string) (models.UserPreferences, error) {
	if cached, ok := s.getCached(ctx, userID); ok {
		return cached, nil
	}

	var p models.UserPreferences
	var categories, locations, interests, avoid []byte
	row := s.pg.QueryRow(ctx, `
		SELECT user_id, preferred_categories, preferred_locations, price_min, price_max, interests, avoid_categories, virtual_preference
		FROM user_preferences WHERE user_id = $1`, userID)
	err := row.Scan(&p.UserID, &categories, &locations, &p.PriceMin, &p.PriceMax, &interests, &avoid, &p.VirtualPreference)
	if err == pgx.ErrNoRows {
		return models.UserPreferences{UserID: userID, VirtualPreference: 0.5}, nil
	}
	if err != nil {
		return models.UserPreferences{}, errs.New(errs.Transient, err)
	}

	_ = json.Unmarshal(categories, &p.PreferredCategories)
	_ = json.Unmarshal(locations, &p.PreferredLocations)
	_ = json.Unmarshal(interests, &p.Interests)
	_ = json.Unmarshal(avoid, &p.AvoidCategories)

	s.cache(ctx, p)
	return p, nil
}

func (s *PreferencesStore) getCached(ctx context.Context, userID string) (models.UserPreferences, bool) {
	if s.redis == nil {
		return models.UserPreferences{}, false
	}
	raw, err := s.redis.Get(ctx, s.cacheKey(userID)).Bytes()
	if err != nil {
		return models.UserPreferences{}, false
	}
	var p models.UserPreferences
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.UserPreferences{}, false
	}
	return p, true
}

func (s *PreferencesStore) cache(ctx context.Context, p models.UserPreferences) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, s.cacheKey(p.UserID), raw, s.cacheTTL).Err(); err != nil {
		s.logger.WithError(err).Debug("preferences store: cache write failed")
	}
}

func (s *PreferencesStore) invalidate(ctx context.Context, userID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, s.cacheKey(userID)).Err(); err != nil {
		s.logger.WithError(err).Debug("preferences store: cache invalidate failed")
	}
}

func (s *PreferencesStore) cacheKey(userID string) string {
	return "prefs:" + userID
}
