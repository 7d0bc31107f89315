package progression

import (
	"slices"
	"time"
)

// State is everything one user owns. Transitions take a State and return a new
// one; slices are copied before an element is replaced so earlier values stay
// valid.
type State struct {
	Courses []Course       `json:"courses"`
	Paths   []LearningPath `json:"learning_paths"`
}

// Empty returns a state with non-nil, empty collections.
func Empty() State {
	return State{Courses: []Course{}, Paths: []LearningPath{}}
}

// FindCourse looks up a course by id, standalone or inside a learning path.
func (s State) FindCourse(id string) (Course, bool) {
	for _, c := range s.Courses {
		if c.ID == id {
			return c, true
		}
	}
	for _, p := range s.Paths {
		for _, c := range p.Courses {
			if c.ID == id {
				return c, true
			}
		}
	}
	return Course{}, false
}

// FindPath looks up a learning path by id.
func (s State) FindPath(id string) (LearningPath, bool) {
	for _, p := range s.Paths {
		if p.ID == id {
			return p, true
		}
	}
	return LearningPath{}, false
}

// PathOf returns the learning path containing the course and the course's
// position in it.
func (s State) PathOf(courseID string) (LearningPath, int, bool) {
	for _, p := range s.Paths {
		for i, c := range p.Courses {
			if c.ID == courseID {
				return p, i, true
			}
		}
	}
	return LearningPath{}, -1, false
}

// NewCourse builds a course from its outline. Every module starts locked and
// only the first one is reachable.
func NewCourse(id string, o CourseOutline, level Level, now time.Time) Course {
	modules := make([]Module, len(o.Modules))
	for i, m := range o.Modules {
		modules[i] = Module{
			Title:           m.Title,
			Objective:       m.Objective,
			GenerationState: StateLocked,
		}
	}
	return Course{
		ID:            id,
		Title:         o.Title,
		Description:   o.Description,
		Level:         level,
		Modules:       modules,
		MockTestState: StateLocked,
		CreatedAt:     now,
	}
}

// NewPath builds a learning path and all of its courses from one outline.
// newID is called once per course.
func NewPath(id string, o PathOutline, level Level, now time.Time, newID func() string) LearningPath {
	courses := make([]Course, len(o.Courses))
	for i, c := range o.Courses {
		courses[i] = NewCourse(newID(), c, level, now)
	}
	return LearningPath{
		ID:          id,
		Title:       o.Title,
		Description: o.Description,
		Level:       level,
		Courses:     courses,
		CreatedAt:   now,
	}
}

// AddCourse prepends a standalone course, newest first.
func AddCourse(s State, c Course) State {
	s.Courses = append([]Course{c}, s.Courses...)
	return s
}

// AddPath prepends a learning path, newest first.
func AddPath(s State, p LearningPath) State {
	s.Paths = append([]LearningPath{p}, s.Paths...)
	return s
}

// RemoveCourse drops a standalone course. Courses inside a path are removed
// with their path.
func RemoveCourse(s State, id string) State {
	i := slices.IndexFunc(s.Courses, func(c Course) bool { return c.ID == id })
	if i < 0 {
		return s
	}
	s.Courses = slices.Delete(slices.Clone(s.Courses), i, i+1)
	return s
}

// RemovePath drops a learning path and its courses.
func RemovePath(s State, id string) State {
	i := slices.IndexFunc(s.Paths, func(p LearningPath) bool { return p.ID == id })
	if i < 0 {
		return s
	}
	s.Paths = slices.Delete(slices.Clone(s.Paths), i, i+1)
	return s
}

// replaceCourse swaps in c wherever a course with the same id lives.
func (s State) replaceCourse(c Course) (State, bool) {
	if i := slices.IndexFunc(s.Courses, func(x Course) bool { return x.ID == c.ID }); i >= 0 {
		s.Courses = slices.Clone(s.Courses)
		s.Courses[i] = c
		return s, true
	}
	for pi, p := range s.Paths {
		ci := slices.IndexFunc(p.Courses, func(x Course) bool { return x.ID == c.ID })
		if ci < 0 {
			continue
		}
		p.Courses = slices.Clone(p.Courses)
		p.Courses[ci] = c
		s.Paths = slices.Clone(s.Paths)
		s.Paths[pi] = p
		return s, true
	}
	return s, false
}

// replacePath swaps in p by id.
func (s State) replacePath(p LearningPath) State {
	if i := slices.IndexFunc(s.Paths, func(x LearningPath) bool { return x.ID == p.ID }); i >= 0 {
		s.Paths = slices.Clone(s.Paths)
		s.Paths[i] = p
	}
	return s
}

// updateModule applies fn to one module of a course, returning the rebuilt course.
func (c Course) updateModule(i int, fn func(Module) Module) Course {
	c.Modules = slices.Clone(c.Modules)
	c.Modules[i] = fn(c.Modules[i])
	return c
}
