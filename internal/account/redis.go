package account

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each user as a hash at <prefix>user:<id>.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed user store.
func NewRedisStore(client *redis.Client, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + "user:" + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (User, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if len(fields) == 0 {
		return User{}, ErrUserNotFound
	}

	u := User{ID: id}
	if v := fields["sealed_api_key"]; v != "" {
		u.SealedKey = []byte(v)
	}
	if u.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return User{}, fmt.Errorf("get user: created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(fields["updated_at"]); err != nil {
		return User{}, fmt.Errorf("get user: updated_at: %w", err)
	}
	return u, nil
}

func (s *RedisStore) Upsert(ctx context.Context, u User) error {
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	key := s.key(u.ID)
	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, key, "created_at", u.CreatedAt.UTC().Format(time.RFC3339Nano))
	pipe.HSet(ctx, key,
		"sealed_api_key", u.SealedKey,
		"updated_at", u.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
