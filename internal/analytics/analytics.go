package analytics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/eventiq/recoengine/internal/models"
)

// Config holds the Real-Time Analytics Engine's tunables: the sliding
// window length, the anomaly threshold multiplier, and the event-buffer
// capacity (roughly 10,000 by default).
type Config struct {
	WindowSeconds              int
	AnomalyThresholdMultiplier float64
	EventBufferCapacity        int
}

func DefaultConfig() Config {
	return Config{
		WindowSeconds:              300,
		AnomalyThresholdMultiplier: DefaultAnomalyThreshold,
		EventBufferCapacity:        10000,
	}
}

// Engine is the Real-Time Analytics Engine: it owns the event buffer,
// per-metric sliding windows, trend analyzers, anomaly detectors, the
// session tracker, and the alerter, and runs the background tasks
// (metric-window flush, trend analysis, anomaly detection, session
// cleanup) as named goroutines with cooperative shutdown.
type Engine struct {
	cfg    Config
	logger *logrus.Logger

	bufMu   sync.Mutex
	buf     []Event
	bufHead int
	bufSize int

	windows   map[string]*SlidingWindow
	trends    map[string]*TrendAnalyzer
	anomalies map[string]*AnomalyDetector
	sessions  *SessionTracker
	alerter   *Alerter

	stopChan chan struct{}
	wg       sync.WaitGroup

	registry        *prometheus.Registry
	eventsProcessed prometheus.Counter
	eventsDropped   prometheus.Counter
	errorsTotal     prometheus.Counter
	windowValue     *prometheus.GaugeVec
	alertsTotal     *prometheus.CounterVec
}

// NewEngine constructs an Engine. A nil registry gets a private
// prometheus.Registry (tests can construct many Engines without
// colliding on the global default registry).
func NewEngine(cfg Config, logger *logrus.Logger, registry *prometheus.Registry) *Engine {
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 300
	}
	if cfg.EventBufferCapacity <= 0 {
		cfg.EventBufferCapacity = 10000
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		buf:       make([]Event, cfg.EventBufferCapacity),
		windows:   make(map[string]*SlidingWindow, len(MetricNames)),
		trends:    make(map[string]*TrendAnalyzer, len(MetricNames)),
		anomalies: make(map[string]*AnomalyDetector, len(MetricNames)),
		sessions:  NewSessionTracker(),
		alerter:   NewAlerter(logger),
		stopChan:  make(chan struct{}),
		registry:  registry,
	}

	for _, m := range MetricNames {
		e.windows[m] = NewSlidingWindow(cfg.WindowSeconds)
		e.trends[m] = NewTrendAnalyzer()
		e.anomalies[m] = NewAnomalyDetector(cfg.AnomalyThresholdMultiplier)
	}

	factory := promauto.With(registry)
	e.eventsProcessed = factory.NewCounter(prometheus.CounterOpts{
		Name: "analytics_events_processed_total",
		Help: "Total number of analytics events processed.",
	})
	e.eventsDropped = factory.NewCounter(prometheus.CounterOpts{
		Name: "analytics_events_dropped_total",
		Help: "Total number of analytics events dropped due to backpressure.",
	})
	e.errorsTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "analytics_errors_total",
		Help: "Total number of error/payment-failed events observed.",
	})
	e.windowValue = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "analytics_window_average",
		Help: "Current rolling average for a sliding-window metric.",
	}, []string{"metric"})
	e.alertsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_alerts_total",
		Help: "Total number of alerts triggered, by type.",
	}, []string{"type"})

	return e
}

// Process ingests one analytics event: it updates the event buffer,
// session tracking, sliding windows, and runs the inline alert checks
// (high latency, high error rate, traffic spike) that must react as the
// event arrives rather than waiting for the next tick.
func (e *Engine) Process(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	e.appendBuffer(ev)
	e.sessions.Touch(ev)
	e.eventsProcessed.Inc()

	for _, metric := range metricsFor(ev.Type) {
		w := e.windows[metric]
		w.Add(ev.Timestamp, 1.0)
		e.windowValue.WithLabelValues(metric).Set(w.Average())
	}

	if ev.ResponseTimeMs > 0 {
		w := e.windows[MetricResponseTime]
		w.Add(ev.Timestamp, ev.ResponseTimeMs)
		e.windowValue.WithLabelValues(MetricResponseTime).Set(w.Average())
		e.checkHighLatency(ev)
	}

	if ev.Type == EventError || ev.Type == EventPaymentFailed {
		e.errorsTotal.Inc()
		e.checkHighErrorRate(ev.Timestamp)
	}

	e.checkTrafficSpike(ev.Timestamp)
}

// ProcessInteraction is the entry point for the primary ingest stream:
// every recorded models.Interaction also flows into the analytics
// engine, so one event stream serves training data and live metrics.
func (e *Engine) ProcessInteraction(in models.Interaction) {
	e.Process(FromInteraction(in))
}

// appendBuffer records ev into the fixed-capacity event buffer, evicting
// the oldest entry once full. On overflow this never blocks the ingest
// path: the drop is only counted.
func (e *Engine) appendBuffer(ev Event) {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()

	if e.bufSize < len(e.buf) {
		idx := (e.bufHead + e.bufSize) % len(e.buf)
		e.buf[idx] = ev
		e.bufSize++
		return
	}

	e.buf[e.bufHead] = ev
	e.bufHead = (e.bufHead + 1) % len(e.buf)
	e.eventsDropped.Inc()
}

// bufferSnapshot returns a copy of the buffered events in chronological
// order. Readers take point-in-time snapshots rather than holding the
// writer's lock.
func (e *Engine) bufferSnapshot() []Event {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()

	out := make([]Event, e.bufSize)
	for i := 0; i < e.bufSize; i++ {
		out[i] = e.buf[(e.bufHead+i)%len(e.buf)]
	}
	return out
}

func (e *Engine) checkHighLatency(ev Event) {
	const latencyThresholdMs = 1000.0
	if ev.ResponseTimeMs <= latencyThresholdMs {
		return
	}
	e.alertsTotal.WithLabelValues(string(AlertHighLatency)).Inc()
	e.alerter.Trigger(Alert{
		Type:     AlertHighLatency,
		Severity: HighLatencySeverity(ev.ResponseTimeMs),
		Metric:   MetricResponseTime,
		Data: map[string]float64{
			"response_time_ms": ev.ResponseTimeMs,
			"threshold_ms":      latencyThresholdMs,
		},
	})
}

// checkHighErrorRate implements the 5-minute error-rate alert: triggers
// when errors/total exceeds 5% over the trailing 5 minutes.
func (e *Engine) checkHighErrorRate(now time.Time) {
	const lookback = 5 * time.Minute
	const errorRateThreshold = 0.05

	since := now.Add(-lookback)
	events := e.bufferSnapshot()

	var total, errors int
	for _, ev := range events {
		if ev.Timestamp.Before(since) {
			continue
		}
		total++
		if ev.Type == EventError || ev.Type == EventPaymentFailed {
			errors++
		}
	}
	if total == 0 {
		return
	}

	errorRate := float64(errors) / float64(total)
	if errorRate <= errorRateThreshold {
		return
	}

	e.alertsTotal.WithLabelValues(string(AlertHighErrorRate)).Inc()
	e.alerter.Trigger(Alert{
		Type:     AlertHighErrorRate,
		Severity: HighErrorRateSeverity(errorRate),
		Metric:   MetricErrors,
		Data: map[string]float64{
			"error_rate": errorRate,
			"errors":     float64(errors),
			"total":      float64(total),
			"threshold":  errorRateThreshold,
		},
	})
}

// checkTrafficSpike implements the traffic-spike alert: current-minute
// event count vs. the average of the preceding 10 minutes.
func (e *Engine) checkTrafficSpike(now time.Time) {
	const baselineMinutes = 10
	const spikeThreshold = 2.0

	currentMinute := now.Truncate(time.Minute)
	events := e.bufferSnapshot()

	currentCount := countInMinute(events, currentMinute)

	var baselineSum float64
	for i := 1; i <= baselineMinutes; i++ {
		minute := currentMinute.Add(-time.Duration(i) * time.Minute)
		baselineSum += countInMinute(events, minute)
	}
	baselineAvg := baselineSum / float64(baselineMinutes)
	if baselineAvg <= 0 {
		return
	}

	multiplier := currentCount / baselineAvg
	if multiplier <= spikeThreshold {
		return
	}

	e.alertsTotal.WithLabelValues(string(AlertTrafficSpike)).Inc()
	e.alerter.Trigger(Alert{
		Type:     AlertTrafficSpike,
		Severity: TrafficSpikeSeverity(multiplier),
		Data: map[string]float64{
			"current_count": currentCount,
			"baseline_avg":  baselineAvg,
			"multiplier":    multiplier,
			"threshold":     spikeThreshold,
		},
	})
}

func countInMinute(events []Event, minuteStart time.Time) float64 {
	minuteEnd := minuteStart.Add(time.Minute)
	var count float64
	for _, ev := range events {
		if !ev.Timestamp.Before(minuteStart) && ev.Timestamp.Before(minuteEnd) {
			count++
		}
	}
	return count
}

// Start launches the background tasks: metric-window flush
// (60s), anomaly detection (60s), trend analysis (300s), and session
// cleanup (hourly). Each is a named, independently cancellable loop.
func (e *Engine) Start() {
	e.wg.Add(4)
	go e.flushLoop()
	go e.anomalyLoop()
	go e.trendLoop()
	go e.sessionCleanupLoop()
}

// Stop cancels every background task and waits for them to exit.
func (e *Engine) Stop() {
	close(e.stopChan)
	e.wg.Wait()
}

func (e *Engine) flushLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.flushWindows()
		case <-e.stopChan:
			return
		}
	}
}

func (e *Engine) flushWindows() {
	for _, metric := range MetricNames {
		avg := e.windows[metric].Average()
		e.trends[metric].Record(avg)
	}
}

func (e *Engine) anomalyLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.detectAnomalies()
		case <-e.stopChan:
			return
		}
	}
}

func (e *Engine) detectAnomalies() {
	for _, metric := range MetricNames {
		_, count, last := e.windows[metric].Snapshot()
		if count == 0 {
			continue
		}
		isAnomaly, baseline, threshold := e.anomalies[metric].Check(last)
		if !isAnomaly {
			continue
		}
		e.alertsTotal.WithLabelValues(string(AlertAnomalyDetected)).Inc()
		e.alerter.Trigger(Alert{
			Type:     AlertAnomalyDetected,
			Severity: SeverityMedium,
			Metric:   metric,
			Data: map[string]float64{
				"current_value": last,
				"baseline":      baseline,
				"threshold":     threshold,
			},
		})
	}
}

func (e *Engine) trendLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(300 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, metric := range MetricNames {
				if trend, ok := e.trends[metric].Analyze(metric); ok {
					e.logger.WithFields(logrus.Fields{
						"metric":    metric,
						"direction": trend.Direction,
						"strength":  trend.Strength,
					}).Debug("analytics: trend analyzed")
				}
			}
		case <-e.stopChan:
			return
		}
	}
}

func (e *Engine) sessionCleanupLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			removed := e.sessions.Cleanup(time.Now())
			e.logger.WithField("removed", removed).Info("analytics: session cleanup swept expired sessions")
		case <-e.stopChan:
			return
		}
	}
}

// Trend returns the latest trend analysis for a metric, and whether
// enough samples exist to report one.
func (e *Engine) Trend(metric string) (Trend, bool) {
	t, ok := e.trends[metric]
	if !ok {
		return Trend{}, false
	}
	return t.Analyze(metric)
}

// WindowSnapshot returns the sum/count/last triple for one metric's
// sliding window.
func (e *Engine) WindowSnapshot(metric string) (sum float64, count int, last float64, ok bool) {
	w, exists := e.windows[metric]
	if !exists {
		return 0, 0, 0, false
	}
	sum, count, last = w.Snapshot()
	return sum, count, last, true
}

// ActiveSessionCount reports sessions active within the idle-expiry
// window as of now.
func (e *Engine) ActiveSessionCount(now time.Time) int {
	return e.sessions.ActiveCount(now)
}

// ActiveSessions returns a snapshot of every currently active session.
func (e *Engine) ActiveSessions(now time.Time) []SessionSnapshot {
	return e.sessions.Active(now)
}

// RecentAlerts returns the most recently triggered alerts.
func (e *Engine) RecentAlerts() []Alert {
	return e.alerter.Recent()
}

// Registry exposes the private Prometheus registry so a caller can wire
// it into an HTTP /metrics endpoint, if one exists in the surrounding
// service.
func (e *Engine) Registry() *prometheus.Registry {
	return e.registry
}
