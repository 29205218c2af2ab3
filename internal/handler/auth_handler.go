// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/ideaforge/internal/auth"
	"github.com/hitoshi/ideaforge/internal/middleware"
	"github.com/hitoshi/ideaforge/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分

	loginErrorEmailRequired = "email_required"
	loginErrorFailed        = "login_failed"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Supports(provider string) bool
	GetLoginURL(provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider, code, state string) (*auth.LoginResult, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// FrontendCallbackURL はログイン成功時にtokenクエリを付けてリダイレクトする先。
	FrontendCallbackURL string
	// FrontendErrorURL はログイン失敗時にerrorクエリを付けてリダイレクトする先。
	FrontendErrorURL string
	CookieSecure     bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// accountResponse はアカウント情報のAPIレスポンス。
type accountResponse struct {
	AccountID   int64     `json:"accountId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Provider    string    `json:"provider"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Login はOAuthフローを開始する。
// GET /auth/{provider}/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := auth.GenerateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	loginURL, err := h.service.GetLoginURL(provider, state)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, loginURL, http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	// 1. 未登録のプロバイダーはリダイレクトせずに404を返す
	if !h.service.Supports(provider) {
		handleServiceError(w, model.NewUnsupportedProviderError(provider))
		return
	}

	// 2. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	h.clearStateCookie(w)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("provider", provider))
		h.redirectError(w, r, loginErrorFailed)
		return
	}

	// 3. プロバイダー側でのエラー（同意拒否など）
	if denied := r.URL.Query().Get("error"); denied != "" {
		slog.Warn("oauth provider returned error",
			slog.String("provider", provider),
			slog.String("error", denied),
		)
		h.redirectError(w, r, loginErrorFailed)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectError(w, r, loginErrorFailed)
		return
	}

	// 4. 認証処理
	result, err := h.service.HandleCallback(r.Context(), provider, code, state)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeEmailRequired {
			h.redirectError(w, r, loginErrorEmailRequired)
			return
		}
		slog.Error("oauth callback failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		h.redirectError(w, r, loginErrorFailed)
		return
	}

	// 5. トークンを付けてフロントエンドにリダイレクト
	http.Redirect(w, r, withQuery(h.config.FrontendCallbackURL, "token", result.Token), http.StatusFound)
}

// Me は現在のアカウント情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(principal.Account))
}

func toAccountResponse(account *model.Account) accountResponse {
	return accountResponse{
		AccountID:   account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Provider:    string(account.Provider),
		Role:        string(account.Role),
		CreatedAt:   account.CreatedAt,
	}
}

func (h *AuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, withQuery(h.config.FrontendErrorURL, "error", code), http.StatusFound)
}

// withQuery はURLにクエリパラメータを1つ追加する。解析できないURLはそのまま連結する。
func withQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL + "?" + url.Values{key: {value}}.Encode()
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
