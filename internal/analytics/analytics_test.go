package analytics

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventiq/recoengine/internal/models"
)

func sampleInteraction() models.Interaction {
	return models.Interaction{
		UserID:    "u1",
		EventID:   "e1",
		Type:      models.InteractionView,
		Timestamp: time.Now(),
		Context:   map[string]string{"session_id": "s1", "event_category": "tech"},
	}
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return l
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// TestEngine_TrafficSpikeAlert feeds 10 minutes of 100 events/min, then
// 1 minute of 600 events, and expects at least one traffic_spike alert
// with a multiplier between 5.8 and 6.2.
func TestEngine_TrafficSpikeAlert(t *testing.T) {
	e := NewEngine(Config{WindowSeconds: 300, EventBufferCapacity: 10000}, testLogger(), nil)

	start := time.Now().Truncate(time.Minute).Add(-11 * time.Minute)
	for minute := 0; minute < 10; minute++ {
		minuteStart := start.Add(time.Duration(minute) * time.Minute)
		for i := 0; i < 100; i++ {
			e.Process(Event{
				Type:      EventView,
				UserID:    "u1",
				Timestamp: minuteStart.Add(time.Duration(i) * (time.Minute / 100)),
			})
		}
	}

	spikeMinute := start.Add(10 * time.Minute)
	for i := 0; i < 600; i++ {
		e.Process(Event{
			Type:      EventView,
			UserID:    "u1",
			Timestamp: spikeMinute.Add(time.Duration(i) * (time.Minute / 600)),
		})
	}

	// The baseline average is diluted by empty minutes while the ramp-up
	// is still filling the 10-minute window, so earlier spurious spikes
	// are possible; only the alert for the actual 100/min to 600/min
	// spike needs to land in the expected band.
	var found bool
	for _, a := range e.RecentAlerts() {
		if a.Type == AlertTrafficSpike && a.Data["multiplier"] >= 5.8 && a.Data["multiplier"] <= 6.2 {
			found = true
		}
	}
	assert.True(t, found, "expected at least one traffic_spike alert with multiplier in [5.8, 6.2]")
}

func TestEngine_HighLatencyAlert(t *testing.T) {
	e := NewEngine(DefaultConfig(), testLogger(), nil)
	e.Process(Event{Type: EventView, UserID: "u1", Timestamp: time.Now(), ResponseTimeMs: 1500})

	alerts := e.RecentAlerts()
	require.NotEmpty(t, alerts)
	assert.Equal(t, AlertHighLatency, alerts[len(alerts)-1].Type)
	assert.Equal(t, SeverityMedium, alerts[len(alerts)-1].Severity)
}

func TestEngine_HighLatencyAlert_HighSeverity(t *testing.T) {
	e := NewEngine(DefaultConfig(), testLogger(), nil)
	e.Process(Event{Type: EventView, UserID: "u1", Timestamp: time.Now(), ResponseTimeMs: 6000})

	alerts := e.RecentAlerts()
	require.NotEmpty(t, alerts)
	assert.Equal(t, SeverityHigh, alerts[len(alerts)-1].Severity)
}

func TestEngine_HighErrorRateAlert(t *testing.T) {
	e := NewEngine(DefaultConfig(), testLogger(), nil)
	now := time.Now()

	for i := 0; i < 17; i++ {
		e.Process(Event{Type: EventView, UserID: "u1", Timestamp: now.Add(time.Duration(i) * time.Second)})
	}
	for i := 0; i < 3; i++ {
		e.Process(Event{Type: EventError, UserID: "u1", Timestamp: now.Add(time.Duration(17+i) * time.Second)})
	}

	var found bool
	for _, a := range e.RecentAlerts() {
		if a.Type == AlertHighErrorRate {
			found = true
		}
	}
	assert.True(t, found, "error rate of 3/20=15%% must exceed the 5%% threshold")
}

func TestEngine_EventBuffer_Bounded(t *testing.T) {
	e := NewEngine(Config{WindowSeconds: 10, EventBufferCapacity: 50}, testLogger(), nil)
	now := time.Now()
	for i := 0; i < 500; i++ {
		e.Process(Event{Type: EventView, UserID: "u1", Timestamp: now.Add(time.Duration(i) * time.Millisecond)})
	}
	assert.Len(t, e.bufferSnapshot(), 50)
}

func TestEngine_WindowSnapshot_UnknownMetric(t *testing.T) {
	e := NewEngine(DefaultConfig(), testLogger(), nil)
	_, _, _, ok := e.WindowSnapshot("not_a_real_metric")
	assert.False(t, ok)
}

func TestEngine_ProcessInteraction_FeedsSessionAndWindow(t *testing.T) {
	e := NewEngine(DefaultConfig(), testLogger(), nil)
	in := sampleInteraction()
	e.ProcessInteraction(in)

	_, count, _, ok := e.WindowSnapshot(MetricPageViews)
	require.True(t, ok)
	assert.Equal(t, 1, count)
}

func TestEngine_FlushAndDetectLoopsAreIndependentlyInvocable(t *testing.T) {
	e := NewEngine(DefaultConfig(), testLogger(), nil)
	e.Process(Event{Type: EventView, UserID: "u1", Timestamp: time.Now()})
	e.flushWindows()
	e.detectAnomalies()
	// No trend yet: exactly one sample has been flushed.
	_, ok := e.Trend(MetricPageViews)
	assert.False(t, ok)
}
