package events

import (
	"log/slog"
	"sync"
)

const defaultSubscriberBuffer = 32

// Hub fans events out to the live subscribers of each user. A subscriber
// that falls behind loses events rather than blocking the sender.
type Hub struct {
	buffer int

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// Subscription receives one user's events until closed.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	userID string
	hub    *Hub
	once   sync.Once
}

// NewHub creates a hub. buffer is the per-subscriber queue length.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber for userID.
func (h *Hub) Subscribe(userID string) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, userID: userID, hub: h}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		delete(h.subs[s.userID], s)
		if len(h.subs[s.userID]) == 0 {
			delete(h.subs, s.userID)
		}
		close(s.ch)
		h.mu.Unlock()
	})
}

// Subscribers returns the number of live subscribers for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// LogEvent delivers the event to every subscriber of its user.
func (h *Hub) LogEvent(event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[event.UserID] {
		select {
		case sub.ch <- event:
		default:
			slog.Debug("dropping event for slow subscriber", "user_id", event.UserID, "type", event.Type)
		}
	}
	return nil
}
