package textenc

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEncoder(t *testing.T) *Encoder {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	enc := New(client, logger, Config{Dimensions: 32, WorkerCount: 2})
	t.Cleanup(enc.Stop)
	return enc
}

func TestEncoder_DeterministicSingleVsBatch(t *testing.T) {
	enc := newTestEncoder(t)
	ctx := context.Background()

	single, err := enc.Encode(ctx, "Tech meetup downtown")
	require.NoError(t, err)

	batch, err := enc.EncodeBatch(ctx, []string{"Tech meetup downtown"})
	require.NoError(t, err)
	require.Len(t, batch, 1)

	assert.Equal(t, single, batch[0])
}

func TestEncoder_SameInputSameOutput(t *testing.T) {
	enc := newTestEncoder(t)
	ctx := context.Background()

	a, err := enc.Encode(ctx, "Live jazz night")
	require.NoError(t, err)
	b, err := enc.Encode(ctx, "Live jazz night")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEncoder_DifferentInputDifferentOutput(t *testing.T) {
	enc := newTestEncoder(t)
	ctx := context.Background()

	a, err := enc.Encode(ctx, "Live jazz night")
	require.NoError(t, err)
	b, err := enc.Encode(ctx, "Startup founders panel")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestEncoder_OutputIsL2Normalized(t *testing.T) {
	enc := newTestEncoder(t)
	ctx := context.Background()

	vec, err := enc.Encode(ctx, "Outdoor yoga session")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sumSquares, 0.01)
}

func TestEncoder_RejectsEmptyText(t *testing.T) {
	enc := newTestEncoder(t)
	_, err := enc.Encode(context.Background(), "")
	assert.Error(t, err)
}
