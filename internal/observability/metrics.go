package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salesdash/salesdash/internal/drilldown"
)

// Metrics collects the Prometheus metrics of the dashboard service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fetchesTotal    *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	fetchesInFlight *prometheus.GaugeVec
}

// NewMetrics initialises the registry and the base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesdash_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "salesdash_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salesdash_drilldown_fetches_total",
		Help: "Drill-down level fetches by level and outcome.",
	}, []string{"level", "outcome"})
	fetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "salesdash_drilldown_fetch_duration_seconds",
		Help:    "Duration of drill-down level fetches.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"level"})
	inFlight := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "salesdash_drilldown_fetches_in_flight",
		Help: "Drill-down fetches currently waiting on the backend.",
	}, []string{"level"})
	registry.MustRegister(requests, duration, fetches, fetchDuration, inFlight)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		fetchesTotal:    fetches,
		fetchDuration:   fetchDuration,
		fetchesInFlight: inFlight,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ViewGauge publishes the number of open views, read on every scrape.
func (m *Metrics) ViewGauge(count func() int) {
	if m == nil || count == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "salesdash_views_open",
		Help: "Dashboard views currently held in memory.",
	}, func() float64 { return float64(count()) }))
}

// FetchStarted implements drilldown.Observer.
func (m *Metrics) FetchStarted(level drilldown.Level) {
	if m == nil {
		return
	}
	m.fetchesInFlight.WithLabelValues(level.String()).Inc()
}

// FetchSettled implements drilldown.Observer.
func (m *Metrics) FetchSettled(level drilldown.Level, outcome drilldown.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchesInFlight.WithLabelValues(level.String()).Dec()
	m.fetchesTotal.WithLabelValues(level.String(), string(outcome)).Inc()
	m.fetchDuration.WithLabelValues(level.String()).Observe(elapsed.Seconds())
}

var _ drilldown.Observer = (*Metrics)(nil)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
