package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hitoshi/ideaforge/internal/middleware"
	"github.com/hitoshi/ideaforge/internal/model"
)

// maxBrainstormBodyBytes はブレインストーミングリクエストボディの上限。
const maxBrainstormBodyBytes = 64 << 10

// BrainstormInput はブレインストーミング開始リクエストの入力。
type BrainstormInput struct {
	Purpose           string
	Associations      []string
	AccountID         *int64
	GuestSessionToken string
}

// BrainstormOutput はブレインストーミング1回分の結果。
type BrainstormOutput struct {
	SessionID string
	Message   string
	Ideas     []*model.Artifact
}

// BrainstormServiceInterface はブレインストーミングハンドラーが必要とするサービスインターフェース。
type BrainstormServiceInterface interface {
	// Brainstorm は所有者を決定したうえでリモートセッションを最後まで実行する。
	Brainstorm(ctx context.Context, principal *model.Principal, in BrainstormInput) (*BrainstormOutput, error)
}

// BrainstormHandler はブレインストーミングのHTTPハンドラー。
type BrainstormHandler struct {
	service BrainstormServiceInterface
}

// NewBrainstormHandler はBrainstormHandlerを生成する。
func NewBrainstormHandler(service BrainstormServiceInterface) *BrainstormHandler {
	return &BrainstormHandler{service: service}
}

type brainstormRequest struct {
	Purpose           string   `json:"purpose"`
	Associations      []string `json:"associations"`
	AccountID         *int64   `json:"accountId"`
	GuestSessionToken string   `json:"guestSessionToken"`
}

type brainstormResponse struct {
	SessionID string            `json:"sessionId"`
	Message   string            `json:"message"`
	Ideas     []*model.Artifact `json:"ideas"`
}

// Brainstorm はブレインストーミングを実行し、生成されたアイデアを返す。
// POST /api/brainstorm
func (h *BrainstormHandler) Brainstorm(w http.ResponseWriter, r *http.Request) {
	var req brainstormRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBrainstormBodyBytes)).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	purpose := strings.TrimSpace(req.Purpose)
	if purpose == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("purpose が空です"))
		return
	}

	associations := make([]string, 0, len(req.Associations))
	for _, a := range req.Associations {
		if a = strings.TrimSpace(a); a != "" {
			associations = append(associations, a)
		}
	}

	out, err := h.service.Brainstorm(r.Context(), middleware.OptionalPrincipal(r.Context()), BrainstormInput{
		Purpose:           purpose,
		Associations:      associations,
		AccountID:         req.AccountID,
		GuestSessionToken: req.GuestSessionToken,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ideas := out.Ideas
	if ideas == nil {
		ideas = []*model.Artifact{}
	}
	writeJSON(w, http.StatusOK, brainstormResponse{
		SessionID: out.SessionID,
		Message:   out.Message,
		Ideas:     ideas,
	})
}
