package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTracker_CreatesAndUpdates(t *testing.T) {
	tr := NewSessionTracker()
	now := time.Now()

	tr.Touch(Event{Type: EventView, UserID: "u1", SessionID: "s1", EventID: "e1", Category: "tech", Timestamp: now})
	tr.Touch(Event{Type: EventView, UserID: "u1", SessionID: "s1", EventID: "e2", Category: "music", Timestamp: now.Add(time.Second)})

	active := tr.Active(now.Add(time.Second))
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].EventCount)
	assert.Equal(t, 2, active[0].PageViews)
	assert.ElementsMatch(t, []string{"e1", "e2"}, active[0].ViewedEvents)
	assert.ElementsMatch(t, []string{"tech", "music"}, active[0].ViewedCategories)
}

func TestSessionTracker_ExpiresAfterIdle(t *testing.T) {
	tr := NewSessionTracker()
	now := time.Now()
	tr.Touch(Event{Type: EventView, UserID: "u1", SessionID: "s1", Timestamp: now})

	assert.Equal(t, 1, tr.ActiveCount(now.Add(29*time.Minute)))
	assert.Equal(t, 0, tr.ActiveCount(now.Add(31*time.Minute)))
}

func TestSessionTracker_CleanupRemovesExpired(t *testing.T) {
	tr := NewSessionTracker()
	now := time.Now()
	tr.Touch(Event{Type: EventView, UserID: "u1", SessionID: "s1", Timestamp: now})
	tr.Touch(Event{Type: EventView, UserID: "u2", SessionID: "s2", Timestamp: now.Add(40 * time.Minute)})

	removed := tr.Cleanup(now.Add(40 * time.Minute))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, tr.ActiveCount(now.Add(40*time.Minute)))
}

func TestSessionTracker_IgnoresEventsWithoutSession(t *testing.T) {
	tr := NewSessionTracker()
	tr.Touch(Event{Type: EventView, UserID: "u1", Timestamp: time.Now()})
	assert.Equal(t, 0, tr.ActiveCount(time.Now()))
}
