package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/terra-clan/assessment-engine/internal/models"
)

func writeEnvelope(w http.ResponseWriter, status int, data interface{}, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]interface{}{"success": status < 300}
	if data != nil {
		resp["data"] = data
	}
	if code != "" {
		resp["error"] = map[string]string{"code": code, "message": message}
	}
	json.NewEncoder(w).Encode(resp)
}

func TestStartSendsTokenAndDecodesView(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/assessments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("Authorization = %q", got)
		}
		var req models.StartRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.QuestionSetID != "backend-intern" {
			t.Errorf("question_set_id = %q", req.QuestionSetID)
		}
		writeEnvelope(w, http.StatusCreated, models.SessionView{SessionID: "s-1", State: "dashboard"}, "", "")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token-1")
	view, err := c.Start(context.Background(), "backend-intern")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if view.SessionID != "s-1" || view.State != "dashboard" {
		t.Errorf("view = %+v", view)
	}
}

func TestAPIErrorCarriesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		writeEnvelope(w, http.StatusServiceUnavailable,
			models.SessionView{SessionID: "s-1", State: "dashboard"},
			"persistence_error", "could not save session")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token-1")
	_, err := c.Submit(context.Background(), "s-1", models.StageTechnical, map[string][]int{"answers": {1}})
	if !IsCode(err, "persistence_error") {
		t.Fatalf("err = %v, want persistence_error", err)
	}

	apiErr := err.(*APIError)
	if apiErr.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d", apiErr.Status)
	}
	view, ok := apiErr.Session()
	if !ok || view.SessionID != "s-1" {
		t.Errorf("attached session = %+v, %v", view, ok)
	}
}

func TestExitConfirmationRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.ExitRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Confirm {
			writeEnvelope(w, http.StatusConflict, nil, "confirmation_required", "confirm to exit")
			return
		}
		writeEnvelope(w, http.StatusOK, models.SessionView{SessionID: "s-1", State: "lobby"}, "", "")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token-1")
	if _, err := c.Exit(context.Background(), "s-1", false); !IsCode(err, "confirmation_required") {
		t.Errorf("unconfirmed exit err = %v", err)
	}

	view, err := c.Exit(context.Background(), "s-1", true)
	if err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if view.State != "lobby" {
		t.Errorf("state = %q", view.State)
	}
}

func TestHistoryQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "10" || r.URL.Query().Get("offset") != "20" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"assessments": []models.SessionView{{SessionID: "a"}, {SessionID: "b"}},
			"total":       2,
		}, "", "")
	}))
	defer srv.Close()

	views, err := NewClient(srv.URL, "t").History(context.Background(), 10, 20)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(views) != 2 || views[0].SessionID != "a" {
		t.Errorf("views = %+v", views)
	}
}

func TestNonEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "t").Health(context.Background())
	if !IsCode(err, "http_error") {
		t.Errorf("err = %v", err)
	}
}
