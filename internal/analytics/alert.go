package analytics

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AlertType enumerates the alert kinds the engine can emit.
type AlertType string

const (
	AlertHighErrorRate   AlertType = "high_error_rate"
	AlertHighLatency     AlertType = "high_latency"
	AlertTrafficSpike    AlertType = "traffic_spike"
	AlertAnomalyDetected AlertType = "anomaly_detected"
)

// Severity classifies an alert's urgency.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert is one emitted alert record.
type Alert struct {
	Type      AlertType
	Severity  Severity
	Timestamp time.Time
	Data      map[string]float64
	Metric    string
}

const recentAlertsCapacity = 200

// alertCooldown bounds how often the same alert type is logged and
// given a fresh ring slot at the same or lower severity. A sustained
// condition is checked on every tick (anomaly) or every ingested event
// (traffic spike, high error rate, high latency); without a cooldown a
// single sustained episode floods the log and the ring with
// near-duplicate alerts instead of one alert for the episode. Within the cooldown window, a repeat at
// the same or lower severity updates the existing slot's data in
// place (so Recent() still reflects the latest reading) without
// re-logging; a severity escalation always gets a fresh slot and a
// log line, since that's new information an operator needs right away.
const alertCooldown = 5 * time.Minute

var severityRank = map[Severity]int{
	SeverityLow:    0,
	SeverityMedium: 1,
	SeverityHigh:   2,
}

type alertState struct {
	lastFired time.Time
	lastRank  int
	slot      int
}

// Alerter accumulates recent alerts and logs each as it's triggered. A
// bounded ring keeps memory flat regardless of ingest volume.
type Alerter struct {
	mu     sync.Mutex
	recent []Alert
	head   int
	size   int
	state  map[AlertType]alertState
	logger *logrus.Logger
}

func NewAlerter(logger *logrus.Logger) *Alerter {
	return &Alerter{
		recent: make([]Alert, recentAlertsCapacity),
		state:  make(map[AlertType]alertState),
		logger: logger,
	}
}

// Trigger records an alert. If the same alert type fired within
// alertCooldown at the same or lower severity, the existing ring slot
// is refreshed with the new data/timestamp instead of logging again;
// otherwise a new slot is appended (evicting the oldest on overflow)
// and the trigger is logged.
func (a *Alerter) Trigger(alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	a.mu.Lock()
	rank := severityRank[alert.Severity]
	st, ok := a.state[alert.Type]
	// The in-place refresh is only safe if st.slot still holds that
	// alert's own record; a long cooldown combined with heavy traffic
	// from other alert types can wrap the ring and recycle the slot
	// for something else in the meantime.
	if ok && a.recent[st.slot].Type == alert.Type && alert.Timestamp.Sub(st.lastFired) < alertCooldown && rank <= st.lastRank {
		a.recent[st.slot] = alert
		a.mu.Unlock()
		return
	}

	var slot int
	if a.size < recentAlertsCapacity {
		slot = (a.head + a.size) % recentAlertsCapacity
		a.size++
	} else {
		slot = a.head
		a.head = (a.head + 1) % recentAlertsCapacity
	}
	a.recent[slot] = alert
	a.state[alert.Type] = alertState{lastFired: alert.Timestamp, lastRank: rank, slot: slot}
	a.mu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"alert_type": alert.Type,
		"severity":   alert.Severity,
		"metric":     alert.Metric,
		"data":       alert.Data,
	}).Warn("analytics: alert triggered")
}

// Recent returns the most recently triggered alerts, oldest first.
func (a *Alerter) Recent() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Alert, a.size)
	for i := 0; i < a.size; i++ {
		out[i] = a.recent[(a.head+i)%recentAlertsCapacity]
	}
	return out
}

// HighErrorRateSeverity maps an error rate to an alert severity.
func HighErrorRateSeverity(errorRate float64) Severity {
	if errorRate > 0.1 {
		return SeverityHigh
	}
	return SeverityMedium
}

// HighLatencySeverity maps a response time to an alert severity.
func HighLatencySeverity(responseTimeMs float64) Severity {
	if responseTimeMs > 5000 {
		return SeverityHigh
	}
	return SeverityMedium
}

// TrafficSpikeSeverity maps a spike multiplier to an alert severity.
func TrafficSpikeSeverity(multiplier float64) Severity {
	if multiplier > 5.0 {
		return SeverityHigh
	}
	return SeverityLow
}
