// Package events records progression events and fans them out to live subscribers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types.
const (
	CourseCreated               = "course_created"
	CourseDeleted               = "course_deleted"
	PathCreated                 = "path_created"
	PathDeleted                 = "path_deleted"
	ModuleGenerationStarted     = "module_generation_started"
	ModuleGenerationSucceeded   = "module_generation_succeeded"
	ModuleGenerationFailed      = "module_generation_failed"
	QuizSubmitted               = "quiz_submitted"
	ModuleCompleted             = "module_completed"
	CourseCompleted             = "course_completed"
	CourseUnlocked              = "course_unlocked"
	MockTestGenerationStarted   = "mock_test_generation_started"
	MockTestGenerationSucceeded = "mock_test_generation_succeeded"
	MockTestGenerationFailed    = "mock_test_generation_failed"
	MockTestSubmitted           = "mock_test_submitted"
	BadgeAwarded                = "badge_awarded"
)

const dbTimeout = 5 * time.Second

// Event is one progression change for a user.
type Event struct {
	UserID      string         `json:"user_id"`
	Type        string         `json:"type"`
	CourseID    string         `json:"course_id,omitempty"`
	PathID      string         `json:"path_id,omitempty"`
	ModuleIndex *int           `json:"module_index,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// check fills CreatedAt and rejects events that cannot be stored.
func (e *Event) check(needUser bool) error {
	if e.Type == "" {
		return errors.New("event type is required")
	}
	if needUser && e.UserID == "" {
		return errors.New("user_id is required")
	}
	if e.ModuleIndex != nil && *e.ModuleIndex < 0 {
		return fmt.Errorf("module_index %d is negative", *e.ModuleIndex)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

// EventLogger defines event logging behavior.
type EventLogger interface {
	LogEvent(event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error {
	return nil
}

// Multi sends every event to each logger in turn.
type Multi []EventLogger

func (m Multi) LogEvent(event Event) error {
	var errs []error
	for _, l := range m {
		if err := l.LogEvent(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(event Event) error {
	if err := event.check(false); err != nil {
		return err
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// Types returns the recorded event types in order.
func (l *MemoryEventLogger) Types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]string, len(l.events))
	for i, e := range l.events {
		types[i] = e.Type
	}
	return types
}

// PostgresEventLogger inserts events into the progress_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return errors.New("event logger pool is nil")
	}
	if err := event.check(true); err != nil {
		return err
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	_, err = l.pool.Exec(ctx,
		`INSERT INTO progress_events (user_id, event_type, course_id, path_id, module_index, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		event.UserID,
		event.Type,
		nullIfEmpty(event.CourseID),
		nullIfEmpty(event.PathID),
		event.ModuleIndex,
		string(data),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.Type,
		"user_id", event.UserID,
		"course_id", event.CourseID,
	)
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
