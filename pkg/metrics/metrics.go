// Package metrics defines the Prometheus collectors used by the engine, the
// worker and the API, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	RatingEventsTotal     *prometheus.CounterVec
	RecommendationsServed *prometheus.CounterVec
	RecomputeDuration     *prometheus.HistogramVec
	FormulaFallbacksTotal *prometheus.CounterVec
	EventLogAppendsTotal  *prometheus.CounterVec
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg uses
// the Prometheus default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RatingEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rating_events_total",
				Help: "Rating events applied, by event type and result (ok, error, dropped).",
			},
			[]string{"type", "result"},
		),
		RecommendationsServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recommendations_served_total",
				Help: "Recommendation requests by retrieval branch.",
			},
			[]string{"branch"},
		),
		RecomputeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recompute_duration_seconds",
				Help:    "Duration of similarity, recommendation and popularity recomputes.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"stage"},
		),
		FormulaFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formula_fallbacks_total",
				Help: "Scores replaced by their neutral default, by formula.",
			},
			[]string{"kind"},
		),
		EventLogAppendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_log_appends_total",
				Help: "Durable event log appends by status.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RatingEventsTotal,
		m.RecommendationsServed,
		m.RecomputeDuration,
		m.FormulaFallbacksTotal,
		m.EventLogAppendsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// RatingEvent counts one applied event.
func (m *Metrics) RatingEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.RatingEventsTotal.WithLabelValues(eventType, result).Inc()
}

// Served counts one recommendation request answered by branch.
func (m *Metrics) Served(branch string) {
	if m == nil {
		return
	}
	m.RecommendationsServed.WithLabelValues(branch).Inc()
}

// ObserveRecompute records how long a recompute stage took since start.
func (m *Metrics) ObserveRecompute(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.RecomputeDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Fallback counts a score replaced by its neutral default.
func (m *Metrics) Fallback(kind string) {
	if m == nil {
		return
	}
	m.FormulaFallbacksTotal.WithLabelValues(kind).Inc()
}

// EventLogAppend counts one durable append.
func (m *Metrics) EventLogAppend(status string) {
	if m == nil {
		return
	}
	m.EventLogAppendsTotal.WithLabelValues(status).Inc()
}

// BreakerState publishes a circuit breaker state.
func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
