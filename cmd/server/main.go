package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/p-n-ai/pai-learn/internal/account"
	"github.com/p-n-ai/pai-learn/internal/ai"
	"github.com/p-n-ai/pai-learn/internal/events"
	"github.com/p-n-ai/pai-learn/internal/generation"
	"github.com/p-n-ai/pai-learn/internal/platform/cache"
	"github.com/p-n-ai/pai-learn/internal/platform/config"
	"github.com/p-n-ai/pai-learn/internal/platform/database"
	"github.com/p-n-ai/pai-learn/internal/platform/logging"
	"github.com/p-n-ai/pai-learn/internal/platform/metrics"
	"github.com/p-n-ai/pai-learn/internal/progression"
	"github.com/p-n-ai/pai-learn/internal/server"
	"github.com/p-n-ai/pai-learn/internal/snapshot"
)

const defaultOllamaURL = "http://localhost:11434"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	key, err := sealingKey(cfg)
	if err != nil {
		return err
	}
	accounts := account.NewService(b.accounts, account.NewSealer(key))

	router, err := buildRouter(cfg.AI)
	if err != nil {
		return err
	}
	prompts, err := generation.LoadPrompts(cfg.Generation.PromptsPath)
	if err != nil {
		return err
	}
	gen, err := generation.New(generation.Config{
		AI:          router,
		Prompts:     prompts,
		Budget:      b.budget,
		Limiter:     newLimiter(cfg.AI),
		SourceLimit: cfg.Generation.SourceMaterialLimit,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := events.NewHub(32)
	svc, err := progression.NewService(progression.ServiceConfig{
		Generator:   gen,
		Store:       b.snapshots,
		Credentials: accounts,
		Events:      events.Multi{b.events, hub},
		Metrics:     m,
		SessionIdle: cfg.Store.SessionIdle,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: server.New(server.Config{
			Progression: svc,
			Accounts:    accounts,
			Hub:         hub,
			Metrics:     m,
			Checks:      b.checks,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: course creation waits on the model and event streams stay open.
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"addr", srv.Addr,
			"store", cfg.Store.Backend,
			"provider", cfg.AI.Provider,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	// Let in-flight generations land in the store before closing it.
	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		slog.Warn("abandoning in-flight generations")
	}
	return nil
}

// backend is the set of stores behind one LEARN_STORE_BACKEND choice.
type backend struct {
	snapshots progression.Store
	accounts  account.Store
	events    events.EventLogger
	budget    ai.BudgetChecker
	checks    map[string]server.Check
	closers   []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{
		snapshots: snapshot.NewMemoryStore(),
		accounts:  account.NewMemoryStore(),
		events:    events.NopEventLogger{},
		budget:    ai.NewInMemoryBudget(cfg.AI.DailyTokenBudget),
		checks:    map[string]server.Check{},
	}

	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := database.New(ctx, database.Config{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.checks["database"] = db.HealthCheck

		if err := database.Migrate(ctx, db.Pool); err != nil {
			b.close()
			return nil, err
		}
		snapshots, err := snapshot.NewPostgresStore(db.Pool)
		if err != nil {
			b.close()
			return nil, err
		}
		users, err := account.NewPostgresStore(db.Pool)
		if err != nil {
			b.close()
			return nil, err
		}
		b.snapshots = snapshots
		b.accounts = users
		b.events = events.NewPostgresEventLogger(db.Pool)

	case config.StoreRedis:
		c, err := cache.New(ctx, cache.Config{
			URL:            cfg.Cache.URL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
			PoolSize:       cfg.Cache.PoolSize,
			ConnectRetries: cfg.Cache.ConnectRetries,
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = c.Close() })
		b.checks["cache"] = c.HealthCheck

		snapshots, err := snapshot.NewRedisStore(c.Client, c.Prefix)
		if err != nil {
			b.close()
			return nil, err
		}
		users, err := account.NewRedisStore(c.Client, c.Prefix)
		if err != nil {
			b.close()
			return nil, err
		}
		b.snapshots = snapshots
		b.accounts = users
		b.budget = ai.NewRedisBudget(c.Client, c.Prefix, cfg.AI.DailyTokenBudget)
	}
	return b, nil
}

// sealingKey parses the configured key. The memory backend may run without
// one, since nothing it seals outlives the process.
func sealingKey(cfg *config.Config) ([32]byte, error) {
	if cfg.Credentials.SecretKey == "" && cfg.Store.Backend == config.StoreMemory {
		slog.Warn("no LEARN_CREDENTIALS_SECRET_KEY set, using a random key")
		return account.RandomKey()
	}
	key, err := account.ParseKey(cfg.Credentials.SecretKey)
	if err != nil {
		return key, fmt.Errorf("LEARN_CREDENTIALS_SECRET_KEY: %w", err)
	}
	return key, nil
}

// buildRouter registers the configured provider and pins per-task models.
func buildRouter(cfg config.AIConfig) (*ai.Router, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	router := ai.NewRouter()
	router.Register(cfg.Provider, provider)

	if cfg.Model != "" {
		for t := ai.TaskOutline; t <= ai.TaskClarify; t++ {
			router.Route(t, ai.Route{Provider: cfg.Provider, Model: cfg.Model})
		}
	}
	for name, model := range cfg.TaskModels {
		task, ok := ai.ParseTaskType(name)
		if !ok {
			return nil, fmt.Errorf("LEARN_AI_TASK_MODELS: unknown task %q", name)
		}
		router.Route(task, ai.Route{Provider: cfg.Provider, Model: model})
	}
	return router, nil
}

// newProvider builds the provider without a key; every request carries the
// user's own.
func newProvider(cfg config.AIConfig) (ai.Provider, error) {
	client := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case "google":
		opts := []ai.GoogleOption{ai.WithGoogleHTTPClient(client)}
		if cfg.BaseURL != "" {
			opts = append(opts, ai.WithGoogleBaseURL(cfg.BaseURL))
		}
		return ai.NewGoogleProvider("", opts...), nil
	case "anthropic":
		opts := []ai.AnthropicOption{ai.WithAnthropicHTTPClient(client)}
		if cfg.BaseURL != "" {
			opts = append(opts, ai.WithAnthropicBaseURL(cfg.BaseURL))
		}
		return ai.NewAnthropicProvider("", opts...), nil
	case "openai", "deepseek", "openrouter":
		opts := []ai.OpenAIOption{ai.WithHTTPClient(client)}
		if cfg.BaseURL != "" {
			opts = append(opts, ai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, ai.WithDefaultModel(cfg.Model))
		}
		switch cfg.Provider {
		case "deepseek":
			return ai.NewDeepSeekProvider("", opts...), nil
		case "openrouter":
			return ai.NewOpenRouterProvider("", opts...), nil
		}
		return ai.NewOpenAIProvider("", opts...), nil
	case "ollama":
		url := cfg.BaseURL
		if url == "" {
			url = defaultOllamaURL
		}
		return ai.NewOllamaProvider(url, ai.WithOllamaHTTPClient(client)), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// newLimiter returns nil when rate limiting is off.
func newLimiter(cfg config.AIConfig) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
}
