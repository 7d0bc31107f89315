// Package generation turns model completions into validated course outlines,
// lessons, quizzes and mock tests.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/time/rate"

	"github.com/p-n-ai/pai-learn/internal/ai"
	"github.com/p-n-ai/pai-learn/internal/progression"
)

// Count targets requested from the model.
const (
	MinOutlineModules     = 10
	MinPathCourses        = 10
	MinQuizQuestions      = 5
	MaxQuizQuestions      = 7
	MinMockTestQuestions  = 10
	defaultSourceLimit    = 20000
	defaultMaxTokens      = 8192
	clarifyMaxTokens      = 1024
	structuredTemperature = 0.4
	clarifyTemperature    = 0.7
)

// Completer is the model gateway. *ai.Router satisfies it.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error)
}

// Config holds generator dependencies.
type Config struct {
	AI          Completer
	Prompts     *Prompts
	Budget      ai.BudgetChecker // optional
	Limiter     *rate.Limiter    // optional, shared by all users
	SourceLimit int              // runes of source material kept
	MaxTokens   int
}

// Generator implements progression.Generator on top of a model gateway.
type Generator struct {
	ai          Completer
	prompts     *Prompts
	budget      ai.BudgetChecker
	limiter     *rate.Limiter
	sourceLimit int
	maxTokens   int
	schemas     map[string]*gojsonschema.Schema
}

// New creates a generator.
func New(cfg Config) (*Generator, error) {
	if cfg.AI == nil {
		return nil, fmt.Errorf("AI gateway is nil")
	}
	prompts := cfg.Prompts
	if prompts == nil {
		var err error
		if prompts, err = LoadPrompts(""); err != nil {
			return nil, err
		}
	}
	schemas, err := loadSchemas()
	if err != nil {
		return nil, err
	}
	g := &Generator{
		ai:          cfg.AI,
		prompts:     prompts,
		budget:      cfg.Budget,
		limiter:     cfg.Limiter,
		sourceLimit: cfg.SourceLimit,
		maxTokens:   cfg.MaxTokens,
		schemas:     schemas,
	}
	if g.sourceLimit <= 0 {
		g.sourceLimit = defaultSourceLimit
	}
	if g.maxTokens <= 0 {
		g.maxTokens = defaultMaxTokens
	}
	return g, nil
}

// CourseOutline generates the skeleton of a new course.
func (g *Generator) CourseOutline(ctx context.Context, cred progression.Credential, req progression.OutlineRequest) (progression.CourseOutline, error) {
	source, cut := truncateRunes(strings.TrimSpace(req.SourceMaterial), g.sourceLimit)
	if cut {
		slog.Info("source material truncated", "user_id", cred.UserID, "limit", g.sourceLimit)
	}
	data := map[string]any{
		"Topic":          req.Topic,
		"Level":          req.Level,
		"SourceMaterial": source,
		"MinModules":     MinOutlineModules,
	}

	var out progression.CourseOutline
	if err := g.structured(ctx, cred, ai.TaskOutline, KindCourseOutline, data, &out); err != nil {
		return progression.CourseOutline{}, err
	}
	warnCount(cred, KindCourseOutline, "modules", len(out.Modules), MinOutlineModules, 0)
	return out, nil
}

// PathOutline generates the skeleton of a learning path.
func (g *Generator) PathOutline(ctx context.Context, cred progression.Credential, goal string, level progression.Level) (progression.PathOutline, error) {
	data := map[string]any{
		"Goal":       goal,
		"Level":      level,
		"MinCourses": MinPathCourses,
		"MinModules": MinOutlineModules,
	}

	var out progression.PathOutline
	if err := g.structured(ctx, cred, ai.TaskPathOutline, KindPathOutline, data, &out); err != nil {
		return progression.PathOutline{}, err
	}
	warnCount(cred, KindPathOutline, "courses", len(out.Courses), MinPathCourses, 0)
	return out, nil
}

// ModuleContent generates the lesson body and quiz of one module.
func (g *Generator) ModuleContent(ctx context.Context, cred progression.Credential, courseTitle, moduleTitle string) (progression.ModuleContent, error) {
	data := map[string]any{
		"CourseTitle":  courseTitle,
		"ModuleTitle":  moduleTitle,
		"MinQuestions": MinQuizQuestions,
		"MaxQuestions": MaxQuizQuestions,
	}

	var out progression.ModuleContent
	if err := g.structured(ctx, cred, ai.TaskModuleContent, KindModuleContent, data, &out); err != nil {
		return progression.ModuleContent{}, err
	}
	if err := checkQuestions(out.Quiz.Questions); err != nil {
		return progression.ModuleContent{}, failed(err)
	}
	if out.Quiz.Title == "" {
		out.Quiz.Title = moduleTitle
	}
	warnCount(cred, KindModuleContent, "questions", len(out.Quiz.Questions), MinQuizQuestions, MaxQuizQuestions)
	return out, nil
}

// MockTest generates a course-wide test from the module outlines.
func (g *Generator) MockTest(ctx context.Context, cred progression.Credential, courseTitle string, modules []progression.ModuleOutline) (progression.Quiz, error) {
	data := map[string]any{
		"CourseTitle":  courseTitle,
		"Modules":      modules,
		"MinQuestions": MinMockTestQuestions,
	}

	var out progression.Quiz
	if err := g.structured(ctx, cred, ai.TaskMockTest, KindMockTest, data, &out); err != nil {
		return progression.Quiz{}, err
	}
	if err := checkQuestions(out.Questions); err != nil {
		return progression.Quiz{}, failed(err)
	}
	if out.Title == "" {
		out.Title = courseTitle + " mock test"
	}
	warnCount(cred, KindMockTest, "questions", len(out.Questions), MinMockTestQuestions, 0)
	return out, nil
}

// Clarify answers a learner's question in free text.
func (g *Generator) Clarify(ctx context.Context, cred progression.Credential, question, contextText string) (string, error) {
	ctxText, _ := truncateRunes(contextText, g.sourceLimit)
	system, user, err := g.prompts.Render(KindClarify, map[string]any{
		"Question": question,
		"Context":  ctxText,
	})
	if err != nil {
		return "", failed(err)
	}

	resp, err := g.complete(ctx, cred, ai.CompletionRequest{
		Task:        ai.TaskClarify,
		Messages:    []ai.Message{{Role: "system", Content: system}, {Role: "user", Content: user}},
		MaxTokens:   clarifyMaxTokens,
		Temperature: clarifyTemperature,
	})
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", failed(fmt.Errorf("empty answer"))
	}
	return answer, nil
}

// structured renders kind's prompt, asks for JSON, validates the reply
// against kind's schema and decodes it into out.
func (g *Generator) structured(ctx context.Context, cred progression.Credential, task ai.TaskType, kind string, data any, out any) error {
	system, user, err := g.prompts.Render(kind, data)
	if err != nil {
		return failed(err)
	}

	resp, err := g.complete(ctx, cred, ai.CompletionRequest{
		Task:        task,
		Messages:    []ai.Message{{Role: "system", Content: system}, {Role: "user", Content: user}},
		MaxTokens:   g.maxTokens,
		Temperature: structuredTemperature,
		JSON:        true,
	})
	if err != nil {
		return err
	}

	doc := []byte(stripFences(resp.Content))
	if !json.Valid(doc) {
		return failed(fmt.Errorf("%w: %s reply is not JSON", errInvalidPayload, kind))
	}
	if err := validate(g.schemas[kind], doc); err != nil {
		slog.Warn("generated payload rejected",
			"user_id", cred.UserID,
			"kind", kind,
			"model", resp.Model,
			"error", err,
		)
		return failed(err)
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return failed(fmt.Errorf("decode %s: %w", kind, err))
	}
	return nil
}

// complete applies the rate limit and token budget around one model call.
func (g *Generator) complete(ctx context.Context, cred progression.Credential, req ai.CompletionRequest) (ai.CompletionResponse, error) {
	if g.budget != nil {
		ok, err := g.budget.Check(ctx, cred.UserID)
		if err != nil {
			return ai.CompletionResponse{}, failed(fmt.Errorf("check budget: %w", err))
		}
		if !ok {
			return ai.CompletionResponse{}, failed(ai.ErrBudgetExceeded)
		}
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return ai.CompletionResponse{}, failed(fmt.Errorf("rate limit: %w", err))
		}
	}

	req.APIKey = cred.APIKey
	resp, err := g.ai.Complete(ctx, req)
	if err != nil {
		if ai.IsUnauthorized(err) {
			slog.Warn("provider rejected the stored api key", "user_id", cred.UserID, "task", req.Task.String())
		}
		return ai.CompletionResponse{}, failed(err)
	}

	if g.budget != nil {
		if err := g.budget.Record(ctx, cred.UserID, resp.TotalTokens()); err != nil {
			slog.Warn("failed to record token usage", "user_id", cred.UserID, "error", err)
		}
	}
	return resp, nil
}

func failed(err error) error {
	return fmt.Errorf("%w: %w", progression.ErrGenerationFailed, err)
}

// warnCount logs counts outside the requested range. hi 0 means no upper bound.
func warnCount(cred progression.Credential, kind, what string, n, lo, hi int) {
	if n >= lo && (hi == 0 || n <= hi) {
		return
	}
	slog.Warn("generated count outside requested range",
		"user_id", cred.UserID,
		"kind", kind,
		"what", what,
		"count", n,
		"min", lo,
		"max", hi,
	)
}
