// Package snapshot persists each user's whole progression state as one JSON
// document. Every save overwrites the previous snapshot.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

// ErrCorrupt is returned by Decode for data that is not a valid snapshot.
var ErrCorrupt = errors.New("corrupt snapshot")

// Encode serializes a state.
func Encode(st progression.State) ([]byte, error) {
	b, err := json.Marshal(normalize(st))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// Decode parses a snapshot and checks the unlock indexes against the
// collections they point into.
func Decode(data []byte) (progression.State, error) {
	var st progression.State
	if err := json.Unmarshal(data, &st); err != nil {
		return progression.State{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := check(st); err != nil {
		return progression.State{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return normalize(st), nil
}

// decodeOrEmpty treats an unreadable snapshot as no snapshot at all.
func decodeOrEmpty(backend, userID string, data []byte) progression.State {
	st, err := Decode(data)
	if err != nil {
		slog.Warn("discarding unreadable snapshot",
			"backend", backend,
			"user_id", userID,
			"bytes", len(data),
			"error", err,
		)
		return progression.Empty()
	}
	return st
}

func check(st progression.State) error {
	for _, c := range st.Courses {
		if err := checkCourse(c); err != nil {
			return err
		}
	}
	for _, p := range st.Paths {
		if p.UnlockedCourseIndex < 0 || p.UnlockedCourseIndex > len(p.Courses) {
			return fmt.Errorf("path %s: unlocked course index %d out of range", p.ID, p.UnlockedCourseIndex)
		}
		for _, c := range p.Courses {
			if err := checkCourse(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkCourse(c progression.Course) error {
	if c.ID == "" {
		return errors.New("course without id")
	}
	if c.UnlockedModuleIndex < 0 || c.UnlockedModuleIndex > len(c.Modules) {
		return fmt.Errorf("course %s: unlocked module index %d out of range", c.ID, c.UnlockedModuleIndex)
	}
	return nil
}

func normalize(st progression.State) progression.State {
	if st.Courses == nil {
		st.Courses = []progression.Course{}
	}
	if st.Paths == nil {
		st.Paths = []progression.LearningPath{}
	}
	return st
}
