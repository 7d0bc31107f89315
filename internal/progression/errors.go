package progression

import "errors"

var (
	ErrNeedsSetup         = errors.New("no API credential configured")
	ErrCourseNotFound     = errors.New("course not found")
	ErrPathNotFound       = errors.New("learning path not found")
	ErrModuleNotFound     = errors.New("module not found")
	ErrModuleLocked       = errors.New("module is locked")
	ErrCourseLocked       = errors.New("course is locked")
	ErrGenerationInFlight = errors.New("generation already in progress")
	ErrAlreadyGenerated   = errors.New("content already generated")
	ErrNotReady           = errors.New("quiz not generated yet")
	ErrCourseIncomplete   = errors.New("course has incomplete modules")

	// ErrGenerationFailed is the single failure kind of the content generator.
	// Callers do not distinguish network, credential or parse problems.
	ErrGenerationFailed = errors.New("content generation failed")
)
