package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

// RedisStore keeps each snapshot as a string at <prefix>snapshot:<user>.
// Snapshots do not expire.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed snapshot store.
func NewRedisStore(client *redis.Client, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + "snapshot:" + userID
}

func (s *RedisStore) Load(ctx context.Context, userID string) (progression.State, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return progression.Empty(), nil
	}
	if err != nil {
		return progression.State{}, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeOrEmpty("redis", userID, data), nil
}

func (s *RedisStore) Save(ctx context.Context, userID string, st progression.State) error {
	data, err := Encode(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
