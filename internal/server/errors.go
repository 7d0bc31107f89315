package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/pai-learn/internal/account"
	"github.com/p-n-ai/pai-learn/internal/progression"
)

// validationError is a client mistake in the request itself.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusOf maps service errors to an HTTP status and a stable code.
func statusOf(err error) (int, string) {
	var ve *validationError
	switch {
	case errors.As(err, &ve), errors.Is(err, account.ErrEmptyKey):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, progression.ErrNeedsSetup):
		return http.StatusPreconditionRequired, "needs_setup"
	case errors.Is(err, progression.ErrCourseNotFound),
		errors.Is(err, progression.ErrPathNotFound),
		errors.Is(err, progression.ErrModuleNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, progression.ErrModuleLocked),
		errors.Is(err, progression.ErrCourseLocked):
		return http.StatusForbidden, "locked"
	case errors.Is(err, progression.ErrGenerationInFlight):
		return http.StatusConflict, "generation_in_flight"
	case errors.Is(err, progression.ErrAlreadyGenerated):
		return http.StatusConflict, "already_generated"
	case errors.Is(err, progression.ErrNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, progression.ErrCourseIncomplete):
		return http.StatusConflict, "course_incomplete"
	case errors.Is(err, progression.ErrGenerationFailed):
		return http.StatusBadGateway, "generation_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		msg = "internal error"
	}
	if status == http.StatusBadGateway {
		msg = progression.ErrGenerationFailed.Error()
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}
