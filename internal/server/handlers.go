package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/p-n-ai/pai-learn/internal/progression"
	"github.com/p-n-ai/pai-learn/internal/report"
)

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

type createCourseRequest struct {
	Topic          string `json:"topic"`
	Level          string `json:"level"`
	SourceMaterial string `json:"source_material"`
}

type createPathRequest struct {
	Goal  string `json:"goal"`
	Level string `json:"level"`
}

type submitRequest struct {
	Answers progression.Answers `json:"answers"`
}

type clarifyRequest struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

func (s *Server) handleSetCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.accounts.SetCredential(r.Context(), r.PathValue("userID"), req.APIKey); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearCredential(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.ClearCredential(r.Context(), r.PathValue("userID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.progress.State(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		writeError(w, r, badRequest("topic is required"))
		return
	}
	level, err := progression.ParseLevel(req.Level)
	if err != nil {
		writeError(w, r, badRequest("%v", err))
		return
	}

	course, err := s.progress.CreateCourse(r.Context(), r.PathValue("userID"), progression.OutlineRequest{
		Topic:          topic,
		Level:          level,
		SourceMaterial: req.SourceMaterial,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, course)
}

func (s *Server) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := s.progress.DeleteCourse(r.Context(), r.PathValue("userID"), r.PathValue("courseID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreatePath(w http.ResponseWriter, r *http.Request) {
	var req createPathRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		writeError(w, r, badRequest("goal is required"))
		return
	}
	level, err := progression.ParseLevel(req.Level)
	if err != nil {
		writeError(w, r, badRequest("%v", err))
		return
	}

	path, err := s.progress.CreateLearningPath(r.Context(), r.PathValue("userID"), goal, level)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, path)
}

func (s *Server) handleDeletePath(w http.ResponseWriter, r *http.Request) {
	if err := s.progress.DeletePath(r.Context(), r.PathValue("userID"), r.PathValue("pathID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGenerateModule(w http.ResponseWriter, r *http.Request) {
	index, err := moduleIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	courseID := r.PathValue("courseID")
	if err := s.progress.RequestModuleGeneration(r.Context(), r.PathValue("userID"), courseID, index); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"course_id":        courseID,
		"module_index":     index,
		"generation_state": progression.StateGenerating,
	})
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	index, err := moduleIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req submitRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := s.progress.SubmitModuleQuiz(r.Context(), r.PathValue("userID"), r.PathValue("courseID"), index, req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGenerateMockTest(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("courseID")
	if err := s.progress.RequestMockTest(r.Context(), r.PathValue("userID"), courseID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"course_id":       courseID,
		"mock_test_state": progression.StateGenerating,
	})
}

func (s *Server) handleSubmitMockTest(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := s.progress.SubmitMockTest(r.Context(), r.PathValue("userID"), r.PathValue("courseID"), req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClarify(w http.ResponseWriter, r *http.Request) {
	var req clarifyRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, r, badRequest("question is required"))
		return
	}

	answer, err := s.progress.Clarify(r.Context(), r.PathValue("userID"), req.Question, req.Context)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	st, err := s.progress.State(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := report.Write(&buf, st); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="progress.xlsx"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("report write failed", "user_id", r.PathValue("userID"), "error", err)
	}
}

func moduleIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		return 0, badRequest("module index must be a non-negative integer")
	}
	return index, nil
}
