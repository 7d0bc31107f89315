package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrEmptyKey is returned when a blank API key is submitted.
var ErrEmptyKey = errors.New("api key is empty")

// Service manages user credentials. It satisfies progression.Credentials.
type Service struct {
	store  Store
	sealer *Sealer
	now    func() time.Time
}

// NewService creates a credential service.
func NewService(store Store, sealer *Sealer) *Service {
	return &Service{store: store, sealer: sealer, now: time.Now}
}

// SetCredential stores the user's API key, creating the user if needed.
func (s *Service) SetCredential(ctx context.Context, userID, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ErrEmptyKey
	}
	sealed, err := s.sealer.Seal(apiKey)
	if err != nil {
		return err
	}

	u, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	u.SealedKey = sealed
	u.UpdatedAt = s.now()
	if err := s.store.Upsert(ctx, u); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	slog.Info("credential set", "user_id", userID)
	return nil
}

// ClearCredential removes the user's API key. Clearing an unknown user is a no-op.
func (s *Service) ClearCredential(ctx context.Context, userID string) error {
	u, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	u.SealedKey = nil
	u.UpdatedAt = s.now()
	if err := s.store.Upsert(ctx, u); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	slog.Info("credential cleared", "user_id", userID)
	return nil
}

// APIKey returns the user's key, or "" when none is set. A key that no longer
// opens under the current secret is treated as unset.
func (s *Service) APIKey(ctx context.Context, userID string) (string, error) {
	u, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(u.SealedKey) == 0 {
		return "", nil
	}
	key, err := s.sealer.Open(u.SealedKey)
	if err != nil {
		slog.Warn("stored credential cannot be opened", "user_id", userID, "error", err)
		return "", nil
	}
	return key, nil
}

func (s *Service) user(ctx context.Context, userID string) (User, error) {
	if userID == "" {
		return User{}, fmt.Errorf("user id is required")
	}
	u, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		now := s.now()
		return User{ID: userID, CreatedAt: now, UpdatedAt: now}, nil
	}
	return u, err
}
