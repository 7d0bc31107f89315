// Package progression holds the learning entities and the transitions that move
// courses, modules and learning paths forward in response to generation results
// and quiz submissions.
package progression

import (
	"fmt"
	"strings"
	"time"
)

// Pass and badge thresholds, in percent.
const (
	ModulePassThreshold   = 80
	MockTestPassThreshold = 70
	BadgeThreshold        = 80

	// RevealAnswersAfter is the failed-attempt count from which the caller may
	// show the correct answers.
	RevealAnswersAfter = 3
)

// GenerationState tracks lazily generated content (module bodies, mock tests).
type GenerationState string

const (
	StateLocked     GenerationState = "locked"
	StateGenerating GenerationState = "generating"
	StateReady      GenerationState = "ready"
	StateFailed     GenerationState = "failed"
)

// QuestionType is the answer format of a quiz question.
type QuestionType string

const (
	SingleSelect QuestionType = "single_select"
	MultiSelect  QuestionType = "multi_select"
)

// Level is the learner's self-declared knowledge level.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// ParseLevel accepts a level name in any case. An empty string means beginner.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case "", LevelBeginner:
		return LevelBeginner, nil
	case LevelIntermediate:
		return LevelIntermediate, nil
	case LevelAdvanced:
		return LevelAdvanced, nil
	default:
		return "", fmt.Errorf("unknown level %q", s)
	}
}

// Question is one quiz item. CorrectAnswers is a subset of Options.
type Question struct {
	Text           string       `json:"text"`
	Type           QuestionType `json:"type"`
	Options        []string     `json:"options"`
	CorrectAnswers []string     `json:"correct_answers"`
}

// Quiz is immutable once generated.
type Quiz struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Answers maps a question index to the options the learner selected.
type Answers map[int][]string

// Module is one lesson of a course. Content and Quiz are only set when
// GenerationState is ready.
type Module struct {
	Title           string          `json:"title"`
	Objective       string          `json:"objective"`
	Content         string          `json:"content,omitempty"`
	Quiz            *Quiz           `json:"quiz,omitempty"`
	IsCompleted     bool            `json:"is_completed"`
	GenerationState GenerationState `json:"generation_state"`
	QuizAttempts    int             `json:"quiz_attempts"`
	QuizScore       *int            `json:"quiz_score,omitempty"`
}

// Badge is awarded once per course for a high-mastery mock test pass.
type Badge struct {
	CourseTitle string    `json:"course_title"`
	Score       int       `json:"score"`
	DateAwarded time.Time `json:"date_awarded"`
}

// Tier derives the cosmetic badge tier from the score.
func (b Badge) Tier() string {
	switch {
	case b.Score >= 90:
		return "Gold"
	case b.Score >= 85:
		return "Silver"
	default:
		return "Bronze"
	}
}

// Course is an ordered list of modules behind a single unlock index.
// 0 <= UnlockedModuleIndex <= len(Modules) always holds.
type Course struct {
	ID                  string          `json:"id"`
	Title               string          `json:"title"`
	Description         string          `json:"description"`
	Level               Level           `json:"level,omitempty"`
	Modules             []Module        `json:"modules"`
	UnlockedModuleIndex int             `json:"unlocked_module_index"`
	IsCompleted         bool            `json:"is_completed"`
	MockTest            *Quiz           `json:"mock_test,omitempty"`
	MockTestState       GenerationState `json:"mock_test_state"`
	MockTestScore       *int            `json:"mock_test_score,omitempty"`
	Badge               *Badge          `json:"badge,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// ModuleAccessible reports whether the module at i is at or behind the unlock frontier.
func (c Course) ModuleAccessible(i int) bool {
	return i >= 0 && i < len(c.Modules) && i <= c.UnlockedModuleIndex
}

// AllModulesCompleted reports whether every module has been passed.
// A course without modules is never complete.
func (c Course) AllModulesCompleted() bool {
	if len(c.Modules) == 0 {
		return false
	}
	for _, m := range c.Modules {
		if !m.IsCompleted {
			return false
		}
	}
	return true
}

// LearningPath sequences courses behind a single unlock index.
type LearningPath struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	Level               Level     `json:"level,omitempty"`
	Courses             []Course  `json:"courses"`
	UnlockedCourseIndex int       `json:"unlocked_course_index"`
	CreatedAt           time.Time `json:"created_at"`
}

// CourseAccessible reports whether the course at i is at or behind the unlock frontier.
func (p LearningPath) CourseAccessible(i int) bool {
	return i >= 0 && i < len(p.Courses) && i <= p.UnlockedCourseIndex
}

// IsCompleted reports whether every course in the path is completed.
func (p LearningPath) IsCompleted() bool {
	if len(p.Courses) == 0 {
		return false
	}
	for _, c := range p.Courses {
		if !c.IsCompleted {
			return false
		}
	}
	return true
}

// ModuleOutline is the title and objective of a module before its content exists.
type ModuleOutline struct {
	Title     string `json:"title"`
	Objective string `json:"objective"`
}

// CourseOutline is the generated skeleton of a course.
type CourseOutline struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Modules     []ModuleOutline `json:"modules"`
}

// PathOutline is the generated skeleton of a learning path.
type PathOutline struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Courses     []CourseOutline `json:"courses"`
}

// ModuleContent is the generated body and quiz of one module.
type ModuleContent struct {
	Content string `json:"content"`
	Quiz    Quiz   `json:"quiz"`
}

// Outline returns the module titles and objectives of the course.
func (c Course) Outline() []ModuleOutline {
	out := make([]ModuleOutline, len(c.Modules))
	for i, m := range c.Modules {
		out[i] = ModuleOutline{Title: m.Title, Objective: m.Objective}
	}
	return out
}
