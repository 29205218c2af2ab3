package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/ideaforge/internal/model"
)

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return raw
}

// TestWriteErrorResponse_TaxonomyErrors は各エラーコードが統一フォーマットで書き込まれることを検証する。
func TestWriteErrorResponse_TaxonomyErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        *model.APIError
	}{
		{"OwnershipRequired", http.StatusBadRequest, model.NewOwnershipRequiredError()},
		{"AuthRequired", http.StatusUnauthorized, model.NewAuthRequiredError()},
		{"Forbidden", http.StatusForbidden, model.NewForbiddenError()},
		{"NotFound", http.StatusNotFound, model.NewNotFoundError("idea", 7)},
		{"RemoteProtocolFailure", http.StatusBadGateway, model.NewRemoteProtocolFailureError("fetch_ideas", errors.New("timeout"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.statusCode, tt.err)

			if w.Code != tt.statusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.statusCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			raw := decodeErrorBody(t, w)
			if raw["code"] != tt.err.Code {
				t.Errorf("code = %v, want %q", raw["code"], tt.err.Code)
			}
			if raw["category"] != tt.err.Category {
				t.Errorf("category = %v, want %q", raw["category"], tt.err.Category)
			}
			for _, field := range []string{"message", "action"} {
				if s, _ := raw[field].(string); s == "" {
					t.Errorf("%s should not be empty", field)
				}
			}
			if _, ok := raw["incidentId"]; ok {
				t.Error("incidentId should be omitted outside panic recovery")
			}
		})
	}
}

// TestWriteErrorResponse_DoesNotLeakCause は原因エラーの内容がレスポンスに含まれないことを検証する。
func TestWriteErrorResponse_DoesNotLeakCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusBadGateway, model.NewRemoteProtocolFailureError("create_session", errors.New("dial tcp 10.0.0.5:8000: refused")))

	body := w.Body.String()
	if strings.Contains(body, "10.0.0.5") || strings.Contains(body, "refused") {
		t.Errorf("response should not contain the cause: %s", body)
	}
}

// TestWriteErrorResponse_NilIsInternal はnilのエラーがINTERNAL_ERRORとして書き込まれることを検証する。
func TestWriteErrorResponse_NilIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusInternalServerError, nil)

	if raw := decodeErrorBody(t, w); raw["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %v, want INTERNAL_ERROR", raw["code"])
	}
}

// TestInternalServerError_ReturnsSystemError は内部エラーが統一フォーマットで返ることを検証する。
func TestInternalServerError_ReturnsSystemError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	raw := decodeErrorBody(t, w)
	if raw["code"] != "INTERNAL_ERROR" || raw["category"] != "system" {
		t.Errorf("body = %v, want INTERNAL_ERROR/system", raw)
	}
}
