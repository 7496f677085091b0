package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrendAnalyzer_InsufficientSamples(t *testing.T) {
	ta := NewTrendAnalyzer()
	for i := 0; i < 5; i++ {
		ta.Record(float64(i))
	}
	_, ok := ta.Analyze("page_views")
	assert.False(t, ok, "fewer than 10 samples must not produce a trend")
}

func TestTrendAnalyzer_UpDirection(t *testing.T) {
	ta := NewTrendAnalyzer()
	for i := 0; i < 20; i++ {
		ta.Record(float64(i) * 2)
	}
	trend, ok := ta.Analyze("page_views")
	assert.True(t, ok)
	assert.Equal(t, TrendUp, trend.Direction)
	assert.Greater(t, trend.Strength, 0.0)
}

func TestTrendAnalyzer_DownDirection(t *testing.T) {
	ta := NewTrendAnalyzer()
	for i := 0; i < 20; i++ {
		ta.Record(100 - float64(i)*2)
	}
	trend, ok := ta.Analyze("page_views")
	assert.True(t, ok)
	assert.Equal(t, TrendDown, trend.Direction)
}

func TestTrendAnalyzer_StableDirection(t *testing.T) {
	ta := NewTrendAnalyzer()
	for i := 0; i < 20; i++ {
		ta.Record(10.0)
	}
	trend, ok := ta.Analyze("page_views")
	assert.True(t, ok)
	assert.Equal(t, TrendStable, trend.Direction)
}

func TestTrendAnalyzer_RingEviction(t *testing.T) {
	ta := NewTrendAnalyzer()
	for i := 0; i < trendMaxSamples+50; i++ {
		ta.Record(float64(i))
	}
	values := ta.ordered()
	assert.Len(t, values, trendMaxSamples)
	// the oldest 50 samples should have been evicted
	assert.Equal(t, float64(50), values[0])
}
