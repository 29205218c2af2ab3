package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/ideaforge/internal/middleware"
	"github.com/hitoshi/ideaforge/internal/model"
)

// IdeaServiceInterface はアイデアハンドラーが必要とするサービスインターフェース。
// principalがnilの場合は未認証として扱われる。
type IdeaServiceInterface interface {
	List(ctx context.Context, principal *model.Principal, owner model.Owner) ([]*model.Artifact, error)
	Count(ctx context.Context, principal *model.Principal, owner model.Owner) (int, error)
	Get(ctx context.Context, principal *model.Principal, id int64) (*model.Artifact, error)
	Delete(ctx context.Context, principal *model.Principal, id int64, guestToken string) error
	LinkGuest(ctx context.Context, principal *model.Principal, guestToken string) (int, error)
}

// IdeaHandler はアイデア管理のHTTPハンドラー。
type IdeaHandler struct {
	service IdeaServiceInterface
}

// NewIdeaHandler はIdeaHandlerを生成する。
func NewIdeaHandler(service IdeaServiceInterface) *IdeaHandler {
	return &IdeaHandler{service: service}
}

type countResponse struct {
	Count int `json:"count"`
}

// ListIdeas は所有者のアイデアを新しい順に返す。
// GET /api/ideas?accountId=xxx または ?guestSessionToken=yyy
func (h *IdeaHandler) ListIdeas(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromQuery(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ideas, err := h.service.List(r.Context(), middleware.OptionalPrincipal(r.Context()), owner)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ideas)
}

// CountIdeas は所有者のアイデア件数を返す。
// GET /api/ideas/count
func (h *IdeaHandler) CountIdeas(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromQuery(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	n, err := h.service.Count(r.Context(), middleware.OptionalPrincipal(r.Context()), owner)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// GetIdea はアイデアを1件返す。
// GET /api/ideas/{id}
func (h *IdeaHandler) GetIdea(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	idea, err := h.service.Get(r.Context(), middleware.OptionalPrincipal(r.Context()), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, idea)
}

// DeleteIdea はアイデアを削除する。
// ゲスト所有のアイデアはX-Guest-Session-Tokenヘッダーで所有を証明する。
// DELETE /api/ideas/{id}
func (h *IdeaHandler) DeleteIdea(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	principal := middleware.OptionalPrincipal(r.Context())
	if err := h.service.Delete(r.Context(), principal, id, r.Header.Get(middleware.GuestSessionTokenHeader)); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LinkGuest はゲストトークンのアイデアをログイン中のアカウントに付け替える。
// POST /api/ideas/link-guest?guestSessionToken=xxx
func (h *IdeaHandler) LinkGuest(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}

	n, err := h.service.LinkGuest(r.Context(), principal, r.URL.Query().Get("guestSessionToken"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, countResponse{Count: n})
}
