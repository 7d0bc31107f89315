// Package server exposes the progression service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-learn/internal/account"
	"github.com/p-n-ai/pai-learn/internal/events"
	"github.com/p-n-ai/pai-learn/internal/platform/metrics"
	"github.com/p-n-ai/pai-learn/internal/progression"
)

const (
	maxBodyBytes = 2 << 20
	checkTimeout = 3 * time.Second
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Config holds server dependencies.
type Config struct {
	Progression *progression.Service
	Accounts    *account.Service
	Hub         *events.Hub // optional, enables the event stream
	Metrics     *metrics.Metrics
	Checks      map[string]Check // run by /readyz
}

// Server routes HTTP requests to the services.
type Server struct {
	progress *progression.Service
	accounts *account.Service
	hub      *events.Hub
	metrics  *metrics.Metrics
	checks   map[string]Check
}

// New creates a server.
func New(cfg Config) *Server {
	return &Server{
		progress: cfg.Progression,
		accounts: cfg.Accounts,
		hub:      cfg.Hub,
		metrics:  cfg.Metrics,
		checks:   cfg.Checks,
	}
}

// Handler returns the HTTP handler with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", s.metrics.Handler())

	s.handle(mux, "PUT /v1/users/{userID}/credential", s.handleSetCredential)
	s.handle(mux, "DELETE /v1/users/{userID}/credential", s.handleClearCredential)
	s.handle(mux, "GET /v1/users/{userID}/state", s.handleState)
	s.handle(mux, "POST /v1/users/{userID}/courses", s.handleCreateCourse)
	s.handle(mux, "DELETE /v1/users/{userID}/courses/{courseID}", s.handleDeleteCourse)
	s.handle(mux, "POST /v1/users/{userID}/paths", s.handleCreatePath)
	s.handle(mux, "DELETE /v1/users/{userID}/paths/{pathID}", s.handleDeletePath)
	s.handle(mux, "POST /v1/users/{userID}/courses/{courseID}/modules/{index}/generate", s.handleGenerateModule)
	s.handle(mux, "POST /v1/users/{userID}/courses/{courseID}/modules/{index}/quiz", s.handleSubmitQuiz)
	s.handle(mux, "POST /v1/users/{userID}/courses/{courseID}/mock-test/generate", s.handleGenerateMockTest)
	s.handle(mux, "POST /v1/users/{userID}/courses/{courseID}/mock-test", s.handleSubmitMockTest)
	s.handle(mux, "POST /v1/users/{userID}/clarify", s.handleClarify)
	s.handle(mux, "GET /v1/users/{userID}/report.xlsx", s.handleReport)
	if s.hub != nil {
		mux.HandleFunc("GET /v1/users/{userID}/events", s.handleEvents)
	}
	return mux
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.metrics.Middleware(pattern, h))
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}
