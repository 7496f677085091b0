package analytics

import (
	"sync"
	"time"
)

const sessionIdleExpiry = 30 * time.Minute

// Session is one active (user, session) tracking record.
type Session struct {
	UserID           string
	SessionID        string
	StartTime        time.Time
	LastActivity     time.Time
	EventCount       int
	PageViews        int
	ViewedEvents     map[string]bool
	ViewedCategories map[string]bool
}

// SessionSnapshot is a read-only, copy-safe view of a Session for callers
// that must not observe concurrent mutation.
type SessionSnapshot struct {
	UserID           string
	SessionID        string
	StartTime        time.Time
	LastActivity     time.Time
	EventCount       int
	PageViews        int
	ViewedEvents     []string
	ViewedCategories []string
	DurationMinutes  float64
}

// SessionTracker is single-writer (the ingest task); readers take
// point-in-time snapshots instead of holding the writer's lock.
type SessionTracker struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionTracker() *SessionTracker {
	return &SessionTracker{sessions: make(map[string]*Session)}
}

func sessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// Touch records activity for (userID, sessionID), creating the session on
// first event. ev.Type == EventView increments page views and records the
// viewed event/category.
func (t *SessionTracker) Touch(ev Event) {
	if ev.UserID == "" || ev.SessionID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey(ev.UserID, ev.SessionID)
	now := ev.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	s, ok := t.sessions[key]
	if !ok {
		s = &Session{
			UserID:           ev.UserID,
			SessionID:        ev.SessionID,
			StartTime:        now,
			ViewedEvents:     map[string]bool{},
			ViewedCategories: map[string]bool{},
		}
		t.sessions[key] = s
	}

	s.LastActivity = now
	s.EventCount++

	if ev.Type == EventView {
		s.PageViews++
		if ev.EventID != "" {
			s.ViewedEvents[ev.EventID] = true
		}
		if ev.Category != "" {
			s.ViewedCategories[ev.Category] = true
		}
	}
}

// ActiveCount reports how many sessions have seen activity within the
// idle-expiry window of "now".
func (t *SessionTracker) ActiveCount(now time.Time) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, s := range t.sessions {
		if now.Sub(s.LastActivity) < sessionIdleExpiry {
			count++
		}
	}
	return count
}

// Active returns a snapshot of every session active within the
// idle-expiry window.
func (t *SessionTracker) Active(now time.Time) []SessionSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []SessionSnapshot
	for _, s := range t.sessions {
		if now.Sub(s.LastActivity) >= sessionIdleExpiry {
			continue
		}
		out = append(out, snapshotSession(s, now))
	}
	return out
}

func snapshotSession(s *Session, now time.Time) SessionSnapshot {
	events := make([]string, 0, len(s.ViewedEvents))
	for e := range s.ViewedEvents {
		events = append(events, e)
	}
	categories := make([]string, 0, len(s.ViewedCategories))
	for c := range s.ViewedCategories {
		categories = append(categories, c)
	}
	return SessionSnapshot{
		UserID:           s.UserID,
		SessionID:        s.SessionID,
		StartTime:        s.StartTime,
		LastActivity:     s.LastActivity,
		EventCount:       s.EventCount,
		PageViews:        s.PageViews,
		ViewedEvents:     events,
		ViewedCategories: categories,
		DurationMinutes:  now.Sub(s.StartTime).Minutes(),
	}
}

// Cleanup deletes every session idle past the 30-minute expiry window.
// Called by the hourly garbage-collection sweep; returns the number of
// sessions removed.
func (t *SessionTracker) Cleanup(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, s := range t.sessions {
		if now.Sub(s.LastActivity) >= sessionIdleExpiry {
			delete(t.sessions, key)
			removed++
		}
	}
	return removed
}
