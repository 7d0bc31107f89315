// Package account stores users and the model API keys they bring.
package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// ErrUserNotFound is returned by Store.Get for an unknown user.
var ErrUserNotFound = errors.New("user not found")

// User is a learner. SealedKey is nil when no credential is set.
type User struct {
	ID        string
	SealedKey []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists users.
type Store interface {
	Get(ctx context.Context, id string) (User, error)
	Upsert(ctx context.Context, u User) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryStore creates an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryStore) Upsert(_ context.Context, u User) error {
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.users[u.ID]; ok {
		u.CreatedAt = old.CreatedAt
	}
	s.users[u.ID] = u
	return nil
}

// PostgresStore keeps users in the users table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed user store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	u := User{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT sealed_api_key, created_at, updated_at FROM users WHERE id = $1`,
		id,
	).Scan(&u.SealedKey, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, u User) error {
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, sealed_api_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET sealed_api_key = EXCLUDED.sealed_api_key, updated_at = EXCLUDED.updated_at`,
		u.ID,
		u.SealedKey,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
