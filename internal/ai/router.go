package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoProvider is returned when nothing is registered to serve a request.
var ErrNoProvider = errors.New("no AI provider registered")

// Route pins a task to a provider and, optionally, a model.
type Route struct {
	Provider string
	Model    string
}

// Router selects a provider based on task type and availability.
type Router struct {
	providers map[string]Provider
	fallback  []string // ordered fallback chain
	routes    map[TaskType]Route
	mu        sync.RWMutex
}

// NewRouter creates a new AI router.
func NewRouter() *Router {
	return &Router{
		providers: make(map[string]Provider),
		routes:    make(map[TaskType]Route),
	}
}

// Register adds a provider to the router.
func (r *Router) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		r.fallback = append(r.fallback, name)
	}
	r.providers[name] = provider
}

// Route sends every request for task to the named provider first.
func (r *Router) Route(task TaskType, route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[task] = route
}

// Complete routes a request to the best available provider. Requests that
// carry a user key go to exactly one provider, since the key belongs to
// that vendor; other requests fall back in registration order.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.candidates(req.Task)
	if len(candidates) == 0 {
		return CompletionResponse{}, ErrNoProvider
	}
	if req.APIKey != "" {
		candidates = candidates[:1]
	}

	route, routed := r.routes[req.Task]
	var errs []error
	for _, name := range candidates {
		provider := r.providers[name]

		attempt := req
		if attempt.Model == "" && routed && route.Provider == name {
			attempt.Model = route.Model
		}

		resp, err := provider.Complete(ctx, attempt)
		if err != nil {
			slog.Warn("AI provider failed",
				"provider", name,
				"task", req.Task.String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		slog.Debug("AI request completed",
			"provider", name,
			"task", req.Task.String(),
			"model", resp.Model,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
		return resp, nil
	}

	return CompletionResponse{}, fmt.Errorf("all AI providers failed: %w", errors.Join(errs...))
}

// candidates lists providers to try for task, the routed one first.
func (r *Router) candidates(task TaskType) []string {
	out := make([]string, 0, len(r.fallback))
	if route, ok := r.routes[task]; ok {
		if _, registered := r.providers[route.Provider]; registered {
			out = append(out, route.Provider)
		}
	}
	for _, name := range r.fallback {
		if len(out) > 0 && out[0] == name {
			continue
		}
		out = append(out, name)
	}
	return out
}

// HasProvider returns true if at least one provider is registered.
func (r *Router) HasProvider() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}

// HealthCheck checks every registered provider.
func (r *Router) HealthCheck(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, name := range r.fallback {
		if err := r.providers[name].HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
