package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBudgetExceeded is returned when a user has spent their daily tokens.
var ErrBudgetExceeded = errors.New("daily token budget exceeded")

// BudgetChecker checks and records daily token usage per user.
type BudgetChecker interface {
	// Check returns true if the user has budget remaining today.
	Check(ctx context.Context, userID string) (bool, error)
	// Record adds token usage for the user to today's total.
	Record(ctx context.Context, userID string, tokens int) error
	// Usage returns today's usage and the user's limit. A zero limit is unlimited.
	Usage(ctx context.Context, userID string) (used int64, limit int64, err error)
}

// InMemoryBudget tracks usage in process memory. It is used for development
// and when no cache is configured.
type InMemoryBudget struct {
	mu      sync.RWMutex
	limit   int64            // default daily limit, 0 = unlimited
	budgets map[string]int64 // user -> limit override
	usage   map[string]int64 // user:day -> tokens used
	now     func() time.Time
}

// NewInMemoryBudget creates an in-memory tracker with a default daily limit.
func NewInMemoryBudget(dailyLimit int64) *InMemoryBudget {
	return &InMemoryBudget{
		limit:   dailyLimit,
		budgets: make(map[string]int64),
		usage:   make(map[string]int64),
		now:     time.Now,
	}
}

// SetBudget overrides the daily limit for one user.
func (b *InMemoryBudget) SetBudget(userID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.budgets[userID] = tokens
}

func (b *InMemoryBudget) Check(ctx context.Context, userID string) (bool, error) {
	used, limit, err := b.Usage(ctx, userID)
	if err != nil {
		return false, err
	}
	return limit == 0 || used < limit, nil
}

func (b *InMemoryBudget) Record(_ context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[budgetKey(userID, b.now())] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(_ context.Context, userID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[budgetKey(userID, b.now())], b.limitFor(userID), nil
}

func (b *InMemoryBudget) limitFor(userID string) int64 {
	if l, ok := b.budgets[userID]; ok {
		return l
	}
	return b.limit
}

// RedisBudget keeps daily counters in Redis/Dragonfly so every replica
// shares them. Counters expire two days after their last write.
type RedisBudget struct {
	client *redis.Client
	prefix string
	limit  int64
	now    func() time.Time
}

const budgetTTL = 48 * time.Hour

// NewRedisBudget creates a Redis-backed tracker. prefix namespaces the keys.
func NewRedisBudget(client *redis.Client, prefix string, dailyLimit int64) *RedisBudget {
	return &RedisBudget{
		client: client,
		prefix: prefix,
		limit:  dailyLimit,
		now:    time.Now,
	}
}

func (b *RedisBudget) key(userID string) string {
	return b.prefix + "budget:" + budgetKey(userID, b.now())
}

func (b *RedisBudget) Check(ctx context.Context, userID string) (bool, error) {
	if b.limit == 0 {
		return true, nil
	}
	used, _, err := b.Usage(ctx, userID)
	if err != nil {
		return false, err
	}
	return used < b.limit, nil
}

func (b *RedisBudget) Record(ctx context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	key := b.key(userID)
	pipe := b.client.TxPipeline()
	pipe.IncrBy(ctx, key, int64(tokens))
	pipe.Expire(ctx, key, budgetTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}
	return nil
}

func (b *RedisBudget) Usage(ctx context.Context, userID string) (int64, int64, error) {
	used, err := b.client.Get(ctx, b.key(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, b.limit, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("reading usage: %w", err)
	}
	return used, b.limit, nil
}

func budgetKey(userID string, day time.Time) string {
	return userID + ":" + day.UTC().Format("20060102")
}
