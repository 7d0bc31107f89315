package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveGeneration(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveGeneration("module", "succeeded")
	m.ObserveGeneration("module", "succeeded")
	m.ObserveGeneration("module", "failed")

	if got := testutil.ToFloat64(m.generation.WithLabelValues("module", "succeeded")); got != 2 {
		t.Errorf("succeeded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.generation.WithLabelValues("module", "failed")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
}

func TestObserveSubmission(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSubmission("mock_test", true)
	m.ObserveSubmission("mock_test", false)
	m.ObserveSubmission("mock_test", false)

	if got := testutil.ToFloat64(m.submissions.WithLabelValues("mock_test", "failed")); got != 2 {
		t.Errorf("failed = %v, want 2", got)
	}
}

func TestNilMetrics_NoPanic(t *testing.T) {
	var m *Metrics
	m.ObserveGeneration("module", "started")
	m.ObserveSubmission("module", true)
	m.ObserveBadge("Gold")

	h := m.Middleware("/x", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestMiddleware_RecordsStatus(t *testing.T) {
	m := New(prometheus.NewRegistry())

	h := m.Middleware("/v1/things", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/things", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/v1/things", "404")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveBadge("Silver")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `learn_badges_awarded_total{tier="Silver"} 1`) {
		t.Errorf("metrics output missing badge counter:\n%s", rec.Body.String())
	}
}
