package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/assessment-engine/internal/models"
	"github.com/terra-clan/assessment-engine/internal/session"
	"github.com/terra-clan/assessment-engine/internal/stages"
)

// maxPayloadBytes bounds stage submissions, which carry source code
const maxPayloadBytes = 1 << 20

// SubmitResponse is the result of a stage submission
type SubmitResponse struct {
	Session models.SessionView `json:"session"`
	Outcome stages.Outcome     `json:"outcome"`
}

func (s *Server) handleStartAssessment(w http.ResponseWriter, r *http.Request) {
	p, ok := ParticipantFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication required")
		return
	}

	var req models.StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}

	view, err := s.sessions.Start(r.Context(), p, req.QuestionSetID)
	if err != nil {
		respondSessionError(w, err, &view)
		return
	}

	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	p, ok := ParticipantFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication required")
		return
	}

	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	views, err := s.sessions.History(r.Context(), p.ID, limit, offset)
	if err != nil {
		respondSessionError(w, err, nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"assessments": views,
		"total":       len(views),
	})
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	p, ok := ParticipantFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication required")
		return
	}

	view, err := s.sessions.View(r.Context(), p.ID, chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err, nil)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleEnterStage(w http.ResponseWriter, r *http.Request) {
	ctrl, stage, ok := s.stageRequest(w, r)
	if !ok {
		return
	}

	view, err := ctrl.EnterStage(r.Context(), stage)
	if err != nil {
		respondSessionError(w, err, &view)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleSubmitStage(w http.ResponseWriter, r *http.Request) {
	ctrl, stage, ok := s.stageRequest(w, r)
	if !ok {
		return
	}

	payload, ok := readPayload(w, r)
	if !ok {
		return
	}

	view, outcome, err := ctrl.Submit(r.Context(), stage, payload)
	if err != nil {
		respondSessionError(w, err, &view)
		return
	}

	respondJSON(w, http.StatusOK, SubmitResponse{Session: view, Outcome: outcome})
}

func (s *Server) handleRunCode(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	payload, ok := readPayload(w, r)
	if !ok {
		return
	}

	report, err := ctrl.Interact(r.Context(), models.StageCoding, payload)
	if err != nil {
		respondSessionError(w, err, nil)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleExitAssessment(w http.ResponseWriter, r *http.Request) {
	p, ok := ParticipantFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication required")
		return
	}

	var req models.ExitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}

	view, err := s.sessions.Exit(r.Context(), p.ID, chi.URLParam(r, "id"), req.Confirm)
	if err != nil {
		respondSessionError(w, err, &view)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// controller resolves the live controller addressed by the request
func (s *Server) controller(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	p, ok := ParticipantFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication required")
		return nil, false
	}

	ctrl, err := s.sessions.Controller(p.ID, chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err, nil)
		return nil, false
	}
	return ctrl, true
}

// stageRequest resolves the controller and stage addressed by the request
func (s *Server) stageRequest(w http.ResponseWriter, r *http.Request) (*session.Controller, models.StageName, bool) {
	stage, ok := models.ParseStageName(chi.URLParam(r, "stage"))
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "unknown stage")
		return nil, "", false
	}

	ctrl, ok := s.controller(w, r)
	if !ok {
		return nil, "", false
	}
	return ctrl, stage, true
}

func readPayload(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "invalid_request", "payload too large")
		return nil, false
	}
	if !json.Valid(body) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return nil, false
	}
	return body, true
}
