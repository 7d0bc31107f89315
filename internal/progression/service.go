package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-learn/internal/events"
	"github.com/p-n-ai/pai-learn/internal/platform/metrics"
)

// Credential is what the generator needs to call the model on a user's behalf.
type Credential struct {
	UserID string
	APIKey string
}

// OutlineRequest asks for a new course outline.
type OutlineRequest struct {
	Topic          string
	Level          Level
	SourceMaterial string
}

// Generator produces course content. Every failure is reported as
// ErrGenerationFailed.
type Generator interface {
	CourseOutline(ctx context.Context, cred Credential, req OutlineRequest) (CourseOutline, error)
	PathOutline(ctx context.Context, cred Credential, goal string, level Level) (PathOutline, error)
	ModuleContent(ctx context.Context, cred Credential, courseTitle, moduleTitle string) (ModuleContent, error)
	MockTest(ctx context.Context, cred Credential, courseTitle string, modules []ModuleOutline) (Quiz, error)
	Clarify(ctx context.Context, cred Credential, question, contextText string) (string, error)
}

// Credentials resolves a user's API key. An empty key means none is set.
type Credentials interface {
	APIKey(ctx context.Context, userID string) (string, error)
}

// Store persists a user's whole state. Load returns an empty state when
// nothing has been saved yet.
type Store interface {
	Load(ctx context.Context, userID string) (State, error)
	Save(ctx context.Context, userID string, state State) error
}

// ServiceConfig holds dependencies for the progression service.
type ServiceConfig struct {
	Generator   Generator
	Store       Store
	Credentials Credentials
	Events      events.EventLogger
	Metrics     *metrics.Metrics
	Now         func() time.Time
	NewID       func() string
	SessionIdle time.Duration // cached state unused this long is dropped; 0 means 30 minutes
}

const defaultSessionIdle = 30 * time.Minute

// Service applies user intents to per-user state. Intents for one user run
// one at a time; generator calls run outside the lock.
type Service struct {
	gen     Generator
	store   Store
	creds   Credentials
	events  events.EventLogger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string

	mu        sync.Mutex
	sessions  map[string]*session
	pending   map[string]int // background generations per user
	idle      time.Duration
	lastSweep time.Time
	inflight  sync.WaitGroup
}

type session struct {
	mu      sync.Mutex
	state   State
	loaded  bool
	evicted bool

	lastUsed time.Time // guarded by Service.mu
}

// NewService creates a progression service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	ev := cfg.Events
	if ev == nil {
		ev = events.NopEventLogger{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	idle := cfg.SessionIdle
	if idle <= 0 {
		idle = defaultSessionIdle
	}
	return &Service{
		gen:      cfg.Generator,
		store:    cfg.Store,
		creds:    cfg.Credentials,
		events:   ev,
		metrics:  cfg.Metrics,
		now:      now,
		newID:    newID,
		sessions: make(map[string]*session),
		pending:  make(map[string]int),
		idle:     idle,
	}, nil
}

// State returns the user's current state.
func (s *Service) State(ctx context.Context, userID string) (State, error) {
	sess, err := s.lock(ctx, userID)
	if err != nil {
		return State{}, err
	}
	defer sess.mu.Unlock()
	return sess.state, nil
}

// Wait blocks until every background generation has been applied.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// CreateCourse generates an outline and stores the new course.
func (s *Service) CreateCourse(ctx context.Context, userID string, req OutlineRequest) (Course, error) {
	cred, err := s.credential(ctx, userID)
	if err != nil {
		return Course{}, err
	}

	outline, err := s.gen.CourseOutline(ctx, cred, req)
	if err != nil {
		s.metrics.ObserveGeneration("course_outline", "failed")
		return Course{}, generationFailure(err)
	}
	s.metrics.ObserveGeneration("course_outline", "succeeded")

	course := NewCourse(s.newID(), outline, req.Level, s.now())
	if err := s.mutate(ctx, userID, func(st State) (State, error) {
		return AddCourse(st, course), nil
	}); err != nil {
		return Course{}, err
	}

	s.emit(events.Event{
		UserID:   userID,
		Type:     events.CourseCreated,
		CourseID: course.ID,
		Data:     map[string]any{"title": course.Title, "modules": len(course.Modules)},
	})
	return course, nil
}

// CreateLearningPath generates a multi-course outline and stores the new path.
func (s *Service) CreateLearningPath(ctx context.Context, userID, goal string, level Level) (LearningPath, error) {
	cred, err := s.credential(ctx, userID)
	if err != nil {
		return LearningPath{}, err
	}

	outline, err := s.gen.PathOutline(ctx, cred, goal, level)
	if err != nil {
		s.metrics.ObserveGeneration("path_outline", "failed")
		return LearningPath{}, generationFailure(err)
	}
	s.metrics.ObserveGeneration("path_outline", "succeeded")

	path := NewPath(s.newID(), outline, level, s.now(), s.newID)
	if err := s.mutate(ctx, userID, func(st State) (State, error) {
		return AddPath(st, path), nil
	}); err != nil {
		return LearningPath{}, err
	}

	s.emit(events.Event{
		UserID: userID,
		Type:   events.PathCreated,
		PathID: path.ID,
		Data:   map[string]any{"title": path.Title, "courses": len(path.Courses)},
	})
	return path, nil
}

// DeleteCourse removes a standalone course.
func (s *Service) DeleteCourse(ctx context.Context, userID, courseID string) error {
	err := s.mutate(ctx, userID, func(st State) (State, error) {
		for _, c := range st.Courses {
			if c.ID == courseID {
				return RemoveCourse(st, courseID), nil
			}
		}
		return st, ErrCourseNotFound
	})
	if err != nil {
		return err
	}
	s.emit(events.Event{UserID: userID, Type: events.CourseDeleted, CourseID: courseID})
	return nil
}

// DeletePath removes a learning path with all of its courses.
func (s *Service) DeletePath(ctx context.Context, userID, pathID string) error {
	err := s.mutate(ctx, userID, func(st State) (State, error) {
		if _, ok := st.FindPath(pathID); !ok {
			return st, ErrPathNotFound
		}
		return RemovePath(st, pathID), nil
	})
	if err != nil {
		return err
	}
	s.emit(events.Event{UserID: userID, Type: events.PathDeleted, PathID: pathID})
	return nil
}

// RequestModuleGeneration marks the module as generating and fetches its
// content in the background. The result is applied to the course by id when
// it arrives, whatever the user is looking at by then. Nothing cancels or
// retries the call.
func (s *Service) RequestModuleGeneration(ctx context.Context, userID, courseID string, index int) error {
	cred, err := s.credential(ctx, userID)
	if err != nil {
		return err
	}

	var course Course
	s.track(userID, 1)
	err = s.mutate(ctx, userID, func(st State) (State, error) {
		c, err := accessibleModule(st, courseID, index)
		if err != nil {
			return st, err
		}
		switch c.Modules[index].GenerationState {
		case StateGenerating:
			return st, ErrGenerationInFlight
		case StateReady:
			return st, ErrAlreadyGenerated
		}
		course = c
		return StartModuleGeneration(st, courseID, index), nil
	})
	if err != nil {
		s.track(userID, -1)
		return err
	}

	s.metrics.ObserveGeneration("module", "started")
	s.emit(events.Event{UserID: userID, Type: events.ModuleGenerationStarted, CourseID: courseID, ModuleIndex: &index})

	bg := context.WithoutCancel(ctx)
	moduleTitle := course.Modules[index].Title
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.track(userID, -1)
		content, genErr := s.gen.ModuleContent(bg, cred, course.Title, moduleTitle)
		s.finishModuleGeneration(bg, userID, courseID, index, content, genErr)
	}()
	return nil
}

func (s *Service) finishModuleGeneration(ctx context.Context, userID, courseID string, index int, mc ModuleContent, genErr error) {
	applied, err := s.complete(ctx, userID, courseID, func(st State) State {
		if genErr != nil {
			return FailModuleGeneration(st, courseID, index)
		}
		return CompleteModuleGeneration(st, courseID, index, mc)
	})
	if err != nil {
		slog.Error("failed to save module generation result",
			"user_id", userID,
			"course_id", courseID,
			"module_index", index,
			"error", err,
		)
	}
	if !applied {
		return
	}

	if genErr != nil {
		slog.Warn("module generation failed",
			"user_id", userID,
			"course_id", courseID,
			"module_index", index,
			"error", genErr,
		)
		s.metrics.ObserveGeneration("module", "failed")
		s.emit(events.Event{UserID: userID, Type: events.ModuleGenerationFailed, CourseID: courseID, ModuleIndex: &index})
		return
	}
	s.metrics.ObserveGeneration("module", "succeeded")
	s.emit(events.Event{
		UserID:      userID,
		Type:        events.ModuleGenerationSucceeded,
		CourseID:    courseID,
		ModuleIndex: &index,
		Data:        map[string]any{"questions": len(mc.Quiz.Questions)},
	})
}

// SubmitModuleQuiz grades a module quiz and applies the unlock rules.
func (s *Service) SubmitModuleQuiz(ctx context.Context, userID, courseID string, index int, answers Answers) (QuizOutcome, error) {
	var out QuizOutcome
	var pathID string
	err := s.mutate(ctx, userID, func(st State) (State, error) {
		c, err := accessibleModule(st, courseID, index)
		if err != nil {
			return st, err
		}
		if m := c.Modules[index]; m.GenerationState != StateReady || m.Quiz == nil {
			return st, ErrNotReady
		}
		if p, _, ok := st.PathOf(courseID); ok {
			pathID = p.ID
		}
		var next State
		next, out = SubmitModuleQuiz(st, courseID, index, answers)
		return next, nil
	})
	if err != nil {
		return QuizOutcome{}, err
	}

	s.metrics.ObserveSubmission("module", out.Passed)
	s.emit(events.Event{
		UserID:      userID,
		Type:        events.QuizSubmitted,
		CourseID:    courseID,
		ModuleIndex: &index,
		Data: map[string]any{
			"percentage": out.Percentage,
			"passed":     out.Passed,
			"attempts":   out.Attempts,
		},
	})
	if out.Passed {
		s.emit(events.Event{UserID: userID, Type: events.ModuleCompleted, CourseID: courseID, ModuleIndex: &index})
	}
	if out.CourseCompleted {
		s.emit(events.Event{UserID: userID, Type: events.CourseCompleted, CourseID: courseID, PathID: pathID})
	}
	if out.CourseUnlocked {
		s.emit(events.Event{UserID: userID, Type: events.CourseUnlocked, CourseID: courseID, PathID: pathID})
	}
	return out, nil
}

// RequestMockTest marks the course mock test as generating and fetches it in
// the background. Every module must be completed first.
func (s *Service) RequestMockTest(ctx context.Context, userID, courseID string) error {
	cred, err := s.credential(ctx, userID)
	if err != nil {
		return err
	}

	var course Course
	s.track(userID, 1)
	err = s.mutate(ctx, userID, func(st State) (State, error) {
		c, err := accessibleCourse(st, courseID)
		if err != nil {
			return st, err
		}
		if !c.AllModulesCompleted() {
			return st, ErrCourseIncomplete
		}
		if c.MockTestState == StateGenerating {
			return st, ErrGenerationInFlight
		}
		course = c
		return StartMockTestGeneration(st, courseID), nil
	})
	if err != nil {
		s.track(userID, -1)
		return err
	}

	s.metrics.ObserveGeneration("mock_test", "started")
	s.emit(events.Event{UserID: userID, Type: events.MockTestGenerationStarted, CourseID: courseID})

	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.track(userID, -1)
		quiz, genErr := s.gen.MockTest(bg, cred, course.Title, course.Outline())
		s.finishMockTestGeneration(bg, userID, courseID, quiz, genErr)
	}()
	return nil
}

func (s *Service) finishMockTestGeneration(ctx context.Context, userID, courseID string, quiz Quiz, genErr error) {
	applied, err := s.complete(ctx, userID, courseID, func(st State) State {
		if genErr != nil {
			return FailMockTestGeneration(st, courseID)
		}
		return CompleteMockTestGeneration(st, courseID, quiz)
	})
	if err != nil {
		slog.Error("failed to save mock test generation result",
			"user_id", userID,
			"course_id", courseID,
			"error", err,
		)
	}
	if !applied {
		return
	}

	if genErr != nil {
		slog.Warn("mock test generation failed", "user_id", userID, "course_id", courseID, "error", genErr)
		s.metrics.ObserveGeneration("mock_test", "failed")
		s.emit(events.Event{UserID: userID, Type: events.MockTestGenerationFailed, CourseID: courseID})
		return
	}
	s.metrics.ObserveGeneration("mock_test", "succeeded")
	s.emit(events.Event{
		UserID:   userID,
		Type:     events.MockTestGenerationSucceeded,
		CourseID: courseID,
		Data:     map[string]any{"questions": len(quiz.Questions)},
	})
}

// SubmitMockTest grades the course mock test and awards a badge when earned.
func (s *Service) SubmitMockTest(ctx context.Context, userID, courseID string, answers Answers) (MockTestOutcome, error) {
	var out MockTestOutcome
	err := s.mutate(ctx, userID, func(st State) (State, error) {
		c, err := accessibleCourse(st, courseID)
		if err != nil {
			return st, err
		}
		if c.MockTestState != StateReady || c.MockTest == nil {
			return st, ErrNotReady
		}
		var next State
		next, out = SubmitMockTest(st, courseID, answers, s.now())
		return next, nil
	})
	if err != nil {
		return MockTestOutcome{}, err
	}

	s.metrics.ObserveSubmission("mock_test", out.Passed)
	s.emit(events.Event{
		UserID:   userID,
		Type:     events.MockTestSubmitted,
		CourseID: courseID,
		Data:     map[string]any{"percentage": out.Percentage, "passed": out.Passed},
	})
	if out.Badge != nil {
		tier := out.Badge.Tier()
		s.metrics.ObserveBadge(tier)
		s.emit(events.Event{
			UserID:   userID,
			Type:     events.BadgeAwarded,
			CourseID: courseID,
			Data:     map[string]any{"score": out.Badge.Score, "tier": tier},
		})
	}
	return out, nil
}

// Clarify answers a free-form question about some lesson text. It does not
// touch the user's state.
func (s *Service) Clarify(ctx context.Context, userID, question, contextText string) (string, error) {
	cred, err := s.credential(ctx, userID)
	if err != nil {
		return "", err
	}
	answer, err := s.gen.Clarify(ctx, cred, question, contextText)
	if err != nil {
		s.metrics.ObserveGeneration("clarify", "failed")
		return "", generationFailure(err)
	}
	s.metrics.ObserveGeneration("clarify", "succeeded")
	return answer, nil
}

func (s *Service) credential(ctx context.Context, userID string) (Credential, error) {
	if s.creds == nil {
		return Credential{}, ErrNeedsSetup
	}
	key, err := s.creds.APIKey(ctx, userID)
	if err != nil {
		return Credential{}, fmt.Errorf("resolve credential: %w", err)
	}
	if key == "" {
		return Credential{}, ErrNeedsSetup
	}
	return Credential{UserID: userID, APIKey: key}, nil
}

// lock returns the user's session locked, loading its state on first use.
// A session is never evicted while it has background generations, so any
// item loaded as generating belongs to an earlier process and is failed.
func (s *Service) lock(ctx context.Context, userID string) (*session, error) {
	for {
		s.mu.Lock()
		now := s.now()
		s.sweep(now)
		sess, ok := s.sessions[userID]
		if !ok {
			sess = &session{}
			s.sessions[userID] = sess
		}
		sess.lastUsed = now
		s.mu.Unlock()

		sess.mu.Lock()
		if sess.evicted {
			sess.mu.Unlock()
			continue
		}
		if !sess.loaded {
			st, err := s.store.Load(ctx, userID)
			if err != nil {
				sess.mu.Unlock()
				return nil, fmt.Errorf("load snapshot: %w", err)
			}
			sess.state = s.interrupt(ctx, userID, st)
			sess.loaded = true
		}
		return sess, nil
	}
}

func (s *Service) interrupt(ctx context.Context, userID string, st State) State {
	st, n := InterruptGenerations(st)
	if n == 0 {
		return st
	}
	slog.Warn("failing generations interrupted by a restart", "user_id", userID, "count", n)
	if err := s.store.Save(ctx, userID, st); err != nil {
		slog.Warn("failed to save interrupted generations", "user_id", userID, "error", err)
	}
	return st
}

// sweep drops sessions idle for longer than s.idle. Sessions with background
// work or a holder are kept. Callers hold s.mu.
func (s *Service) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.idle/2 {
		return
	}
	s.lastSweep = now
	for id, sess := range s.sessions {
		if s.pending[id] > 0 || now.Sub(sess.lastUsed) < s.idle {
			continue
		}
		if !sess.mu.TryLock() {
			continue
		}
		sess.evicted = true
		delete(s.sessions, id)
		sess.mu.Unlock()
	}
}

func (s *Service) track(userID string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[userID] += delta
	if s.pending[userID] <= 0 {
		delete(s.pending, userID)
	}
}

// Sessions reports how many users have state cached.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// mutate applies fn and persists the result. The in-memory state only moves
// forward once the snapshot is saved.
func (s *Service) mutate(ctx context.Context, userID string, fn func(State) (State, error)) error {
	sess, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	next, err := fn(sess.state)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, userID, next); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	sess.state = next
	return nil
}

// complete applies a background generation result. The result is kept in
// memory even when saving fails so it is not lost; the next successful save
// persists it. Results for a course that no longer exists are dropped.
func (s *Service) complete(ctx context.Context, userID, courseID string, fn func(State) State) (bool, error) {
	sess, err := s.lock(ctx, userID)
	if err != nil {
		return false, err
	}
	defer sess.mu.Unlock()

	if _, ok := sess.state.FindCourse(courseID); !ok {
		slog.Info("dropping generation result for deleted course", "user_id", userID, "course_id", courseID)
		return false, nil
	}
	sess.state = fn(sess.state)
	return true, s.store.Save(ctx, userID, sess.state)
}

func (s *Service) emit(e events.Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if err := s.events.LogEvent(e); err != nil {
		slog.Warn("failed to log event", "type", e.Type, "user_id", e.UserID, "error", err)
	}
}

func accessibleCourse(st State, courseID string) (Course, error) {
	c, ok := st.FindCourse(courseID)
	if !ok {
		return Course{}, ErrCourseNotFound
	}
	if p, pos, inPath := st.PathOf(courseID); inPath && !p.CourseAccessible(pos) {
		return Course{}, ErrCourseLocked
	}
	return c, nil
}

func accessibleModule(st State, courseID string, index int) (Course, error) {
	c, err := accessibleCourse(st, courseID)
	if err != nil {
		return Course{}, err
	}
	if index < 0 || index >= len(c.Modules) {
		return Course{}, ErrModuleNotFound
	}
	if !c.ModuleAccessible(index) {
		return Course{}, ErrModuleLocked
	}
	return c, nil
}

func generationFailure(err error) error {
	if errors.Is(err, ErrGenerationFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
}
