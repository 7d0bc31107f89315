package snapshot

import (
	"context"
	"sync"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

// MemoryStore keeps encoded snapshots in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, userID string) (progression.State, error) {
	s.mu.RLock()
	data, ok := s.data[userID]
	s.mu.RUnlock()
	if !ok {
		return progression.Empty(), nil
	}
	return decodeOrEmpty("memory", userID, data), nil
}

func (s *MemoryStore) Save(_ context.Context, userID string, st progression.State) error {
	data, err := Encode(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[userID] = data
	s.mu.Unlock()
	return nil
}

// Raw replaces a user's stored bytes. Used to simulate damaged storage.
func (s *MemoryStore) Raw(userID string, data []byte) {
	s.mu.Lock()
	s.data[userID] = append([]byte(nil), data...)
	s.mu.Unlock()
}
