package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventiq/recoengine/internal/models"
)

func newTestEventStore(t *testing.T) *EventStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	return NewEventStore(nil, client, logger, time.Minute)
}

func TestEventStore_CacheRoundTrip(t *testing.T) {
	s := newTestEventStore(t)
	ctx := context.Background()

	e := models.EventFeatures{
		EventID:        "e1",
		Title:          "Tech Meetup",
		Category:       "tech",
		Tags:           []string{"go", "cloud"},
		SemanticVector: []float64{0.1, 0.2, 0.3},
	}

	s.cache(ctx, e)

	cached, ok := s.getCached(ctx, "e1")
	require.True(t, ok)
	assert.Equal(t, e.EventID, cached.EventID)
	assert.Equal(t, e.Tags, cached.Tags)
	assert.Equal(t, e.SemanticVector, cached.SemanticVector)
}

func TestEventStore_CacheMiss(t *testing.T) {
	s := newTestEventStore(t)
	_, ok := s.getCached(context.Background(), "unknown")
	assert.False(t, ok)
}
