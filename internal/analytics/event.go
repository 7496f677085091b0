// Package analytics implements the Real-Time Analytics Engine: sliding
// window counters, a session tracker, trend analysis, anomaly detection,
// and alerting over the same interaction stream that feeds the
// recommendation core.
package analytics

import (
	"time"

	"github.com/eventiq/recoengine/internal/models"
)

// EventType enumerates the analytics event kinds tracked by the engine.
// This is a superset of models.InteractionType: besides the content
// interactions ingested for CF/CB, the engine also observes operational
// and business events (search, payment, error, response latency) that
// never flow through the Interaction Store but still shape the activity
// signal and alerting.
type EventType string

const (
	EventUserLogin           EventType = "user_login"
	EventView                EventType = "event_view"
	EventRegistration        EventType = "event_registration"
	EventSearchQuery         EventType = "search_query"
	EventRecommendationClick EventType = "recommendation_click"
	EventPaymentCompleted    EventType = "payment_completed"
	EventPaymentFailed       EventType = "payment_failed"
	EventError               EventType = "error"
)

// Metric names.
const (
	MetricActiveUsers          = "active_users"
	MetricPageViews            = "page_views"
	MetricEventRegistrations   = "event_registrations"
	MetricSearchQueries        = "search_queries"
	MetricRecommendationClicks = "recommendation_clicks"
	MetricPaymentCompletions   = "payment_completions"
	MetricErrors               = "errors"
	MetricResponseTime         = "response_time"
)

// MetricNames lists every sliding window the engine maintains.
var MetricNames = []string{
	MetricActiveUsers,
	MetricPageViews,
	MetricEventRegistrations,
	MetricSearchQueries,
	MetricRecommendationClicks,
	MetricPaymentCompletions,
	MetricErrors,
	MetricResponseTime,
}

// Event is one analytics record flowing into the engine.
type Event struct {
	Type           EventType
	UserID         string
	SessionID      string
	EventID        string
	Category       string
	Timestamp      time.Time
	ResponseTimeMs float64 // 0 means not measured
}

// metricsFor returns the sliding-window metrics a given event type
// contributes a unit count to.
func metricsFor(t EventType) []string {
	switch t {
	case EventUserLogin:
		return []string{MetricActiveUsers}
	case EventView:
		return []string{MetricPageViews}
	case EventRegistration:
		return []string{MetricEventRegistrations}
	case EventSearchQuery:
		return []string{MetricSearchQueries}
	case EventRecommendationClick:
		return []string{MetricRecommendationClicks}
	case EventPaymentCompleted:
		return []string{MetricPaymentCompletions}
	case EventPaymentFailed, EventError:
		return []string{MetricErrors}
	default:
		return nil
	}
}

// FromInteraction bridges the primary ingest stream (models.Interaction)
// into an analytics Event. Only interaction types with a natural
// analytics-metric home are mapped; others still update session tracking
// and the event buffer via ProcessInteraction but contribute to no
// sliding window.
func FromInteraction(in models.Interaction) Event {
	ev := Event{
		UserID:    in.UserID,
		EventID:   in.EventID,
		Timestamp: in.Timestamp,
	}
	if sessionID, ok := in.Context["session_id"]; ok {
		ev.SessionID = sessionID
	}
	if category, ok := in.Context["event_category"]; ok {
		ev.Category = category
	}

	switch in.Type {
	case models.InteractionView:
		ev.Type = EventView
	case models.InteractionRegister:
		ev.Type = EventRegistration
	case models.InteractionClick:
		ev.Type = EventRecommendationClick
	default:
		ev.Type = EventType(in.Type)
	}
	return ev
}
