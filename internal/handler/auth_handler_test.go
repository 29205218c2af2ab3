package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/ideaforge/internal/auth"
	"github.com/hitoshi/ideaforge/internal/middleware"
	"github.com/hitoshi/ideaforge/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	supported        map[string]bool
	getLoginURLFn    func(provider, state string) (string, error)
	handleCallbackFn func(ctx context.Context, provider, code, state string) (*auth.LoginResult, error)
}

func (m *mockAuthService) Supports(provider string) bool {
	return m.supported[strings.ToLower(provider)]
}

func (m *mockAuthService) GetLoginURL(provider, state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(provider, state)
	}
	if !m.Supports(provider) {
		return "", model.NewUnsupportedProviderError(provider)
	}
	return "https://accounts.example.com/authorize?state=" + state, nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, provider, code, state string) (*auth.LoginResult, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, provider, code, state)
	}
	return nil, errors.New("not implemented")
}

var testAuthConfig = AuthHandlerConfig{
	FrontendCallbackURL: "http://localhost:3000/oauth/callback",
	FrontendErrorURL:    "http://localhost:3000/login",
}

// serveAuth はAuthHandlerを/{provider}パラメータ付きのchiルーターで実行する。
func serveAuth(h *AuthHandler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/auth/{provider}/login", h.Login)
	r.Get("/auth/{provider}/callback", h.Callback)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func callbackRequest(query, stateCookie string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+query, nil)
	if stateCookie != "" {
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: stateCookie})
	}
	return req
}

func redirectQuery(t *testing.T, w *httptest.ResponseRecorder) (string, url.Values) {
	t.Helper()
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location header: %v", err)
	}
	return loc.Scheme + "://" + loc.Host + loc.Path, loc.Query()
}

// --- テスト ---

func TestAuthHandler_Login_RedirectsWithStateCookie(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{supported: map[string]bool{"google": true}}, testAuthConfig)

	w := serveAuth(h, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}

	var state *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == oauthStateCookie {
			state = c
		}
	}
	if state == nil || state.Value == "" {
		t.Fatal("expected oauth_state cookie to be set")
	}
	if !state.HttpOnly {
		t.Error("oauth_state cookie should be HttpOnly")
	}

	location := w.Header().Get("Location")
	if !strings.Contains(location, "state="+state.Value) {
		t.Errorf("Location = %q, should carry the cookie state", location)
	}
}

func TestAuthHandler_Login_UnsupportedProvider_Returns404(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{supported: map[string]bool{"google": true}}, testAuthConfig)

	w := serveAuth(h, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	var body middleware.ErrorResponseBody
	json.NewDecoder(w.Body).Decode(&body)
	if body.Code != model.ErrCodeUnsupportedProvider {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnsupportedProvider)
	}
}

func TestAuthHandler_Callback_UnsupportedProvider_Returns404(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{supported: map[string]bool{"kakao": true}}, testAuthConfig)

	w := serveAuth(h, callbackRequest("code=c&state=s", "s"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAuthHandler_Callback_Success_RedirectsWithToken(t *testing.T) {
	var gotCode, gotState string
	svc := &mockAuthService{
		supported: map[string]bool{"google": true},
		handleCallbackFn: func(ctx context.Context, provider, code, state string) (*auth.LoginResult, error) {
			gotCode, gotState = code, state
			return &auth.LoginResult{
				Account: &model.Account{ID: 7, Email: "user@example.com"},
				Token:   "jwt-token-abc",
			}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	w := serveAuth(h, callbackRequest("code=auth-code&state=xyz", "xyz"))

	base, q := redirectQuery(t, w)
	if base != "http://localhost:3000/oauth/callback" {
		t.Errorf("redirect base = %q", base)
	}
	if q.Get("token") != "jwt-token-abc" {
		t.Errorf("token = %q, want %q", q.Get("token"), "jwt-token-abc")
	}
	if gotCode != "auth-code" || gotState != "xyz" {
		t.Errorf("HandleCallback got code=%q state=%q", gotCode, gotState)
	}
}

func TestAuthHandler_Callback_StateMismatch_RedirectsLoginFailed(t *testing.T) {
	called := false
	svc := &mockAuthService{
		supported: map[string]bool{"google": true},
		handleCallbackFn: func(ctx context.Context, provider, code, state string) (*auth.LoginResult, error) {
			called = true
			return nil, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	tests := []struct {
		name   string
		query  string
		cookie string
	}{
		{"cookieなし", "code=c&state=s", ""},
		{"値の不一致", "code=c&state=s", "other"},
		{"stateなし", "code=c", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveAuth(h, callbackRequest(tt.query, tt.cookie))
			base, q := redirectQuery(t, w)
			if base != "http://localhost:3000/login" {
				t.Errorf("redirect base = %q", base)
			}
			if q.Get("error") != loginErrorFailed {
				t.Errorf("error = %q, want %q", q.Get("error"), loginErrorFailed)
			}
		})
	}
	if called {
		t.Error("HandleCallback should not be called when state does not match")
	}
}

func TestAuthHandler_Callback_EmailRequired_RedirectsEmailRequired(t *testing.T) {
	svc := &mockAuthService{
		supported: map[string]bool{"google": true},
		handleCallbackFn: func(ctx context.Context, provider, code, state string) (*auth.LoginResult, error) {
			return nil, model.NewEmailRequiredError("KAKAO")
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	w := serveAuth(h, callbackRequest("code=c&state=s", "s"))

	_, q := redirectQuery(t, w)
	if q.Get("error") != loginErrorEmailRequired {
		t.Errorf("error = %q, want %q", q.Get("error"), loginErrorEmailRequired)
	}
}

func TestAuthHandler_Callback_ExchangeFailure_RedirectsLoginFailed(t *testing.T) {
	svc := &mockAuthService{
		supported: map[string]bool{"google": true},
		handleCallbackFn: func(ctx context.Context, provider, code, state string) (*auth.LoginResult, error) {
			return nil, errors.New("token endpoint unreachable")
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	w := serveAuth(h, callbackRequest("code=c&state=s", "s"))

	_, q := redirectQuery(t, w)
	if q.Get("error") != loginErrorFailed {
		t.Errorf("error = %q, want %q", q.Get("error"), loginErrorFailed)
	}
}

func TestAuthHandler_Callback_ProviderDenied_RedirectsLoginFailed(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{supported: map[string]bool{"google": true}}, testAuthConfig)

	w := serveAuth(h, callbackRequest("error=access_denied&state=s", "s"))

	_, q := redirectQuery(t, w)
	if q.Get("error") != loginErrorFailed {
		t.Errorf("error = %q, want %q", q.Get("error"), loginErrorFailed)
	}
}

func TestAuthHandler_Me_ReturnsAccount(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig)
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	account := &model.Account{
		ID:          42,
		Email:       "user@example.com",
		DisplayName: "Taro",
		Provider:    model.ProviderNaver,
		Role:        model.RoleUser,
		CreatedAt:   created,
	}

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), account)
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	want := map[string]any{
		"accountId":   float64(42),
		"email":       "user@example.com",
		"displayName": "Taro",
		"provider":    "NAVER",
		"role":        "USER",
		"createdAt":   created.Format(time.RFC3339),
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("%s = %v, want %v", k, body[k], v)
		}
	}
}

func TestAuthHandler_Me_Anonymous_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig)

	w := httptest.NewRecorder()
	h.Me(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestWithQuery_PreservesExistingQuery(t *testing.T) {
	got := withQuery("https://app.example.com/cb?lang=ko", "token", "a b")
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("invalid url %q: %v", got, err)
	}
	if u.Query().Get("lang") != "ko" || u.Query().Get("token") != "a b" {
		t.Errorf("withQuery = %q", got)
	}
}
