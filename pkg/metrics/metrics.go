// Package metrics provides Prometheus metrics for the projection engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every collector on a private registry. A nil *Manager is
// valid and records nothing.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	enabled        bool
	registry       *prometheus.Registry

	// Data source resilience
	breakerTransitions *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	sourceFetches      *prometheus.CounterVec
	sourceLatency      *prometheus.HistogramVec
	staleServed        *prometheus.CounterVec

	// Caches
	cacheLookups *prometheus.CounterVec

	// Predictions
	predictions       *prometheus.CounterVec
	predictionLatency *prometheus.HistogramVec
	degraded          *prometheus.CounterVec

	// Backtests and jobs
	backtestWindows *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "nba",
		subsystem:      "projections",
		latencyBuckets: prometheus.DefBuckets,
		enabled:        true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.breakerTransitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker state transitions per data source",
	}, []string{"source", "from", "to"})

	m.breakerState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "breaker_state",
		Help:      "Current breaker state per source (0 closed, 1 half-open, 2 open)",
	}, []string{"source"})

	m.sourceFetches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "source_fetches_total",
		Help:      "Data source calls by outcome",
	}, []string{"source", "outcome"})

	m.sourceLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "source_fetch_duration_seconds",
		Help:      "Data source call latency including retries",
		Buckets:   m.latencyBuckets,
	}, []string{"source"})

	m.staleServed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stale_served_total",
		Help:      "Responses served from expired cache after all sources failed",
	}, []string{"resource"})

	m.cacheLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by cache name and result",
	}, []string{"cache", "result"})

	m.predictions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "predictions_total",
		Help:      "Ensemble predictions computed by statistic and outcome",
	}, []string{"statistic", "outcome"})

	m.predictionLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "prediction_duration_seconds",
		Help:      "Time to compute a prediction on cache miss",
		Buckets:   m.latencyBuckets,
	}, []string{"statistic"})

	m.degraded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "degraded_predictions_total",
		Help:      "Predictions flagged as degraded by reason",
	}, []string{"reason"})

	m.backtestWindows = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "backtest_windows_total",
		Help:      "Walk-forward windows evaluated or skipped",
	}, []string{"status"})

	m.jobRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "job_runs_total",
		Help:      "Scheduled job executions by status",
	}, []string{"job", "status"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   m.latencyBuckets,
	}, []string{"route", "method"})
}

func (m *Manager) on() bool {
	return m != nil && m.enabled
}

// Registry exposes the private registry for tests and custom collectors.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Manager) RecordBreakerTransition(source, from, to string, state int) {
	if !m.on() {
		return
	}
	m.breakerTransitions.WithLabelValues(source, from, to).Inc()
	m.breakerState.WithLabelValues(source).Set(float64(state))
}

func (m *Manager) RecordSourceFetch(source, outcome string, elapsed time.Duration) {
	if !m.on() {
		return
	}
	m.sourceFetches.WithLabelValues(source, outcome).Inc()
	if outcome != "skipped" {
		m.sourceLatency.WithLabelValues(source).Observe(elapsed.Seconds())
	}
}

func (m *Manager) RecordStaleServed(resource string) {
	if !m.on() {
		return
	}
	m.staleServed.WithLabelValues(resource).Inc()
}

func (m *Manager) RecordCacheLookup(cache string, hit bool) {
	if !m.on() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Manager) RecordPrediction(statistic, outcome string, elapsed time.Duration) {
	if !m.on() {
		return
	}
	m.predictions.WithLabelValues(statistic, outcome).Inc()
	if outcome == "ok" {
		m.predictionLatency.WithLabelValues(statistic).Observe(elapsed.Seconds())
	}
}

func (m *Manager) RecordDegraded(reason string) {
	if !m.on() {
		return
	}
	m.degraded.WithLabelValues(reason).Inc()
}

func (m *Manager) RecordBacktestWindow(status string) {
	if !m.on() {
		return
	}
	m.backtestWindows.WithLabelValues(status).Inc()
}

func (m *Manager) RecordJobRun(job, status string) {
	if !m.on() {
		return
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
}

func (m *Manager) RecordHTTPRequest(route, method, statusCode string, elapsed time.Duration) {
	if !m.on() {
		return
	}
	m.httpRequests.WithLabelValues(route, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
