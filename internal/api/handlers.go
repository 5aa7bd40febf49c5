package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/assessment-engine/internal/execution"
	"github.com/terra-clan/assessment-engine/internal/failure"
	"github.com/terra-clan/assessment-engine/internal/models"
	"github.com/terra-clan/assessment-engine/internal/session"
	"github.com/terra-clan/assessment-engine/internal/stages"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondErrorWithData(w, status, code, message, nil)
}

// respondErrorWithData reports an error while still returning state the
// client must render, such as a session that advanced locally
func respondErrorWithData(w http.ResponseWriter, status int, code, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Data:    data,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondSessionError maps controller and stage errors to HTTP responses.
// view is attached when the session state moved despite the error.
func respondSessionError(w http.ResponseWriter, err error, view *models.SessionView) {
	var data interface{}
	if view != nil && view.SessionID != "" {
		data = view
	}

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "not_found", "assessment not found")
	case errors.Is(err, session.ErrQuestionSetNotFound):
		respondError(w, http.StatusNotFound, "question_set_not_found", "question set not found")
	case errors.Is(err, session.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden", "assessment belongs to another participant")
	case errors.Is(err, session.ErrConfirmationRequired):
		respondErrorWithData(w, http.StatusConflict, "confirmation_required",
			"leaving releases proctoring; confirm to exit", data)
	case errors.Is(err, session.ErrStageLocked):
		respondErrorWithData(w, http.StatusConflict, "stage_locked", "stage is locked", data)
	case errors.Is(err, session.ErrStageCompleted):
		respondErrorWithData(w, http.StatusConflict, "stage_completed", "stage already completed", data)
	case errors.Is(err, session.ErrStageNotActive):
		respondErrorWithData(w, http.StatusConflict, "stage_not_active", "stage is not active", data)
	case errors.Is(err, session.ErrStaleResponse):
		respondErrorWithData(w, http.StatusConflict, "stale_response", "stage ended before the result arrived", data)
	case errors.Is(err, session.ErrInvalidTransition):
		respondErrorWithData(w, http.StatusConflict, "invalid_transition", err.Error(), data)
	case errors.Is(err, session.ErrSessionActive):
		respondError(w, http.StatusConflict, "session_active", "an assessment is already in progress")
	case errors.Is(err, stages.ErrInvalidPayload),
		errors.Is(err, stages.ErrTaskNotFound),
		errors.Is(err, stages.ErrNotInteractive),
		errors.Is(err, stages.ErrUnknownStage),
		errors.Is(err, execution.ErrUnsupportedLanguage):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		respondFailure(w, err, data)
	}
}

// respondFailure maps the failure taxonomy to HTTP responses
func respondFailure(w http.ResponseWriter, err error, data interface{}) {
	kind, ok := failure.KindOf(err)
	if !ok {
		slog.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	reason := failure.ReasonOf(err)
	switch kind {
	case failure.KindPermissionDenied, failure.KindIntegrityViolation:
		respondErrorWithData(w, http.StatusForbidden, string(kind), reason, data)
	case failure.KindPersistence:
		respondErrorWithData(w, http.StatusServiceUnavailable, string(kind), reason, data)
	case failure.KindConnectivity:
		respondErrorWithData(w, http.StatusBadGateway, string(kind), reason, data)
	default:
		respondErrorWithData(w, http.StatusUnprocessableEntity, string(kind), reason, data)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Ping(r.Context()); err != nil {
		slog.Warn("readiness check failed", "probe", "sessions", "error", err)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	checks := map[string]string{}
	ready := true
	if s.probes != nil {
		for name, err := range s.probes.CheckAll(r.Context()) {
			if err != nil {
				slog.Warn("readiness check failed", "probe", name, "error", err)
				checks[name] = err.Error()
				ready = false
				continue
			}
			checks[name] = "ok"
		}
	}

	if !ready {
		respondErrorWithData(w, http.StatusServiceUnavailable, "not_ready", "service not ready", checks)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}

// Question set handlers

func (s *Server) handleListQuestionSets(w http.ResponseWriter, r *http.Request) {
	sets := s.questionSets.List()
	summaries := make([]models.QuestionSetSummary, 0, len(sets))
	for _, qs := range sets {
		summaries = append(summaries, qs.Summary())
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"question_sets": summaries,
		"total":         len(summaries),
	})
}

func (s *Server) handleGetQuestionSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "question set id is required")
		return
	}

	qs := s.questionSets.Get(id)
	if qs == nil {
		respondError(w, http.StatusNotFound, "not_found", "question set not found")
		return
	}

	// answers and hidden test cases are never serialized
	respondJSON(w, http.StatusOK, qs)
}
