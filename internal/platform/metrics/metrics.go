// Package metrics exposes Prometheus collectors for generation, grading and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	generation      *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	badges          *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	gatherer        prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		generation: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learn_generation_total",
				Help: "Content generation calls by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learn_quiz_submissions_total",
				Help: "Graded quiz and mock test submissions",
			},
			[]string{"kind", "outcome"},
		),
		badges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learn_badges_awarded_total",
				Help: "Badges awarded by tier",
			},
			[]string{"tier"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learn_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "learn_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		),
		gatherer: reg,
	}
	reg.MustRegister(m.generation, m.submissions, m.badges, m.requests, m.requestDuration)
	return m
}

// ObserveGeneration counts a generation call.
func (m *Metrics) ObserveGeneration(kind, outcome string) {
	if m == nil {
		return
	}
	m.generation.WithLabelValues(kind, outcome).Inc()
}

// ObserveSubmission counts a graded submission.
func (m *Metrics) ObserveSubmission(kind string, passed bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	m.submissions.WithLabelValues(kind, outcome).Inc()
}

// ObserveBadge counts an awarded badge.
func (m *Metrics) ObserveBadge(tier string) {
	if m == nil {
		return
	}
	m.badges.WithLabelValues(tier).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records count and latency for requests served by next under route.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
