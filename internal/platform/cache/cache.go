// Package cache connects to the Dragonfly/Redis instance that backs the
// redis store backend.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout  = 5 * time.Second
	ioTimeout    = 3 * time.Second
	retryBackoff = 500 * time.Millisecond
)

// Config holds connection settings.
type Config struct {
	URL            string
	KeyPrefix      string
	PoolSize       int // 0 keeps the go-redis default
	ConnectRetries int // extra pings after the first one fails
}

// Cache holds a connected client. Every key written through the application
// starts with Prefix.
type Cache struct {
	Client *redis.Client
	Prefix string
}

// ParseURL validates a Redis connection URL.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, errors.New("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	return opts, nil
}

// NormalizePrefix makes a non-empty prefix end in ':' so that "learn" and
// "learn:" name the same keyspace.
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || strings.HasSuffix(prefix, ":") {
		return prefix
	}
	return prefix + ":"
}

// New connects and pings, retrying with a linear backoff while the server
// comes up.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	opts, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = ioTimeout
	opts.WriteTimeout = ioTimeout
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)
	if err := ping(ctx, client, cfg.ConnectRetries); err != nil {
		_ = client.Close()
		return nil, err
	}

	slog.Info("cache connected", "addr", opts.Addr, "db", opts.DB, "prefix", NormalizePrefix(cfg.KeyPrefix))
	return &Cache{Client: client, Prefix: NormalizePrefix(cfg.KeyPrefix)}, nil
}

func ping(ctx context.Context, client *redis.Client, retries int) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			slog.Warn("cache not ready, retrying", "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return fmt.Errorf("pinging cache: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}
		if err = client.Ping(ctx).Err(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("pinging cache after %d attempts: %w", retries+1, err)
}

// Close shuts down the client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck verifies the connection is alive.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
