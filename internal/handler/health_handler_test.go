package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okCheck(name string) ReadinessCheck {
	return ReadinessCheck{Name: name, Check: func(ctx context.Context) error { return nil }}
}

func TestHealthHandler_Live(t *testing.T) {
	h := NewHealthHandler(ReadinessCheck{Name: "database", Check: func(ctx context.Context) error {
		t.Error("liveness should not run readiness checks")
		return nil
	}})

	w := httptest.NewRecorder()
	h.Live(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestHealthHandler_Ready_AllChecksPass(t *testing.T) {
	h := NewHealthHandler(okCheck("database"), okCheck("brainstorm_engine"))

	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Status string                 `json:"status"`
		Checks map[string]checkResult `json:"checks"`
	}
	json.NewDecoder(w.Body).Decode(&body)
	if body.Status != "ready" {
		t.Errorf("status = %q, want %q", body.Status, "ready")
	}
	if body.Checks["database"].Status != "ok" || body.Checks["brainstorm_engine"].Status != "ok" {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestHealthHandler_Ready_EngineDown(t *testing.T) {
	h := NewHealthHandler(
		okCheck("database"),
		ReadinessCheck{Name: "brainstorm_engine", Check: func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("readiness check should run with a deadline")
			}
			return errors.New("connection refused")
		}},
	)

	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var body struct {
		Status string                 `json:"status"`
		Checks map[string]checkResult `json:"checks"`
	}
	json.NewDecoder(w.Body).Decode(&body)
	if body.Status != "not_ready" {
		t.Errorf("status = %q, want %q", body.Status, "not_ready")
	}
	if got := body.Checks["brainstorm_engine"]; got.Status != "error" || got.Error != "connection refused" {
		t.Errorf("brainstorm_engine = %+v", got)
	}
	if body.Checks["database"].Status != "ok" {
		t.Errorf("database = %+v", body.Checks["database"])
	}
}
