package progression

import (
	"slices"
	"time"
)

// QuizOutcome describes what a module quiz submission did.
type QuizOutcome struct {
	Grade
	Passed          bool `json:"passed"`
	Attempts        int  `json:"attempts"`
	RevealAnswers   bool `json:"reveal_answers"`
	ModuleUnlocked  bool `json:"module_unlocked"`
	CourseCompleted bool `json:"course_completed"`
	CourseUnlocked  bool `json:"course_unlocked"`
}

// MockTestOutcome describes what a mock test submission did.
type MockTestOutcome struct {
	Grade
	Passed bool   `json:"passed"`
	Badge  *Badge `json:"badge,omitempty"`
}

// StartModuleGeneration marks a module as generating.
func StartModuleGeneration(s State, courseID string, index int) State {
	return setModuleState(s, courseID, index, func(m Module) Module {
		m.GenerationState = StateGenerating
		return m
	})
}

// CompleteModuleGeneration stores the generated content and quiz together and
// marks the module ready.
func CompleteModuleGeneration(s State, courseID string, index int, mc ModuleContent) State {
	return setModuleState(s, courseID, index, func(m Module) Module {
		quiz := mc.Quiz
		m.Content = mc.Content
		m.Quiz = &quiz
		m.GenerationState = StateReady
		return m
	})
}

// FailModuleGeneration marks a module failed. Content and quiz are left alone.
func FailModuleGeneration(s State, courseID string, index int) State {
	return setModuleState(s, courseID, index, func(m Module) Module {
		m.GenerationState = StateFailed
		return m
	})
}

func setModuleState(s State, courseID string, index int, fn func(Module) Module) State {
	c, ok := s.FindCourse(courseID)
	if !ok || index < 0 || index >= len(c.Modules) {
		return s
	}
	s, _ = s.replaceCourse(c.updateModule(index, fn))
	return s
}

// SubmitModuleQuiz grades a module quiz and applies the unlock rules. Passing
// completes the module and advances the course frontier when the module sits
// on it; failing only counts the attempt. Completion never reverts. When the
// course completes on its path's frontier the path frontier advances too.
func SubmitModuleQuiz(s State, courseID string, index int, answers Answers) (State, QuizOutcome) {
	c, ok := s.FindCourse(courseID)
	if !ok || index < 0 || index >= len(c.Modules) || c.Modules[index].Quiz == nil {
		return s, QuizOutcome{}
	}

	grade := GradeQuiz(*c.Modules[index].Quiz, answers)
	out := QuizOutcome{Grade: grade, Passed: grade.Percentage >= ModulePassThreshold}
	wasCompleted := c.IsCompleted

	c = c.updateModule(index, func(m Module) Module {
		if out.Passed {
			score := grade.Percentage
			m.IsCompleted = true
			m.QuizScore = &score
			m.QuizAttempts = 0
		} else {
			m.QuizAttempts++
		}
		out.Attempts = m.QuizAttempts
		return m
	})
	if out.Passed && index == c.UnlockedModuleIndex {
		c.UnlockedModuleIndex++
		out.ModuleUnlocked = true
	}
	c.IsCompleted = c.AllModulesCompleted()
	out.CourseCompleted = c.IsCompleted && !wasCompleted
	out.RevealAnswers = !out.Passed && out.Attempts >= RevealAnswersAfter

	s, _ = s.replaceCourse(c)

	if p, pos, inPath := s.PathOf(courseID); inPath && out.CourseCompleted && pos == p.UnlockedCourseIndex {
		p.UnlockedCourseIndex++
		s = s.replacePath(p)
		out.CourseUnlocked = true
	}
	return s, out
}

// StartMockTestGeneration marks the course mock test as generating.
func StartMockTestGeneration(s State, courseID string) State {
	return setCourse(s, courseID, func(c Course) Course {
		c.MockTestState = StateGenerating
		return c
	})
}

// CompleteMockTestGeneration stores a generated mock test and marks it ready.
func CompleteMockTestGeneration(s State, courseID string, quiz Quiz) State {
	return setCourse(s, courseID, func(c Course) Course {
		c.MockTest = &quiz
		c.MockTestState = StateReady
		return c
	})
}

// FailMockTestGeneration marks the mock test failed, keeping any earlier test.
func FailMockTestGeneration(s State, courseID string) State {
	return setCourse(s, courseID, func(c Course) Course {
		c.MockTestState = StateFailed
		return c
	})
}

// SubmitMockTest grades the course mock test. A pass records the score; a
// score at or above BadgeThreshold awards a badge unless one already exists.
func SubmitMockTest(s State, courseID string, answers Answers, now time.Time) (State, MockTestOutcome) {
	c, ok := s.FindCourse(courseID)
	if !ok || c.MockTest == nil {
		return s, MockTestOutcome{}
	}

	grade := GradeQuiz(*c.MockTest, answers)
	out := MockTestOutcome{Grade: grade, Passed: grade.Percentage >= MockTestPassThreshold}
	if out.Passed {
		score := grade.Percentage
		c.MockTestScore = &score
	}
	if grade.Percentage >= BadgeThreshold && c.Badge == nil {
		c.Badge = &Badge{CourseTitle: c.Title, Score: grade.Percentage, DateAwarded: now}
		out.Badge = c.Badge
	}

	s, _ = s.replaceCourse(c)
	return s, out
}

func setCourse(s State, courseID string, fn func(Course) Course) State {
	c, ok := s.FindCourse(courseID)
	if !ok {
		return s
	}
	s, _ = s.replaceCourse(fn(c))
	return s
}

// InterruptGenerations marks every generating module and mock test failed and
// returns how many it changed. It is for state loaded by a process that has
// no generation running for it, where "generating" can never resolve.
func InterruptGenerations(s State) (State, int) {
	courses := slices.Clone(s.Courses)
	for _, p := range s.Paths {
		courses = append(courses, p.Courses...)
	}
	n := 0
	for _, c := range courses {
		if c.MockTestState == StateGenerating {
			s = FailMockTestGeneration(s, c.ID)
			n++
		}
		for i, m := range c.Modules {
			if m.GenerationState == StateGenerating {
				s = FailModuleGeneration(s, c.ID, i)
				n++
			}
		}
	}
	return s, n
}
