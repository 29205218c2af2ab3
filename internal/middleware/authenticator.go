// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/ideaforge/internal/model"
)

const bearerPrefix = "bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストにPrincipalを格納するためのキー。
var principalContextKey = contextKey("principal")

// TokenVerifier はベアラートークンの検証に必要なインターフェース。
// auth.TokenServiceが実装する。
type TokenVerifier interface {
	Validate(token string) bool
	DecodeAccountID(token string) (int64, error)
}

// AccountFinder はアカウントの検索に必要なインターフェース。
// repository.AccountRepositoryの部分集合として定義する。
type AccountFinder interface {
	FindByID(ctx context.Context, id int64) (*model.Account, error)
}

// NewAuthenticatorMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// 有効であればアカウントをPrincipalとしてリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない、無効、アカウントが存在しない、途中でpanicした場合も
// 未認証としてそのまま次のハンドラーに進む。このミドルウェア自体はリクエストを拒否しない。
func NewAuthenticatorMiddleware(tokens TokenVerifier, accounts AccountFinder, logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if principal := authenticate(r, tokens, accounts, logger); principal != nil {
				r = r.WithContext(ContextWithPrincipal(r.Context(), principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate はリクエストからPrincipalを解決する。解決できない場合はnilを返す。
func authenticate(r *http.Request, tokens TokenVerifier, accounts AccountFinder, logger *slog.Logger) (principal *model.Principal) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic during authentication, continuing unauthenticated",
				slog.Any("panic", rec),
				slog.String("path", r.URL.Path),
			)
			principal = nil
		}
	}()

	// 1. Authorizationヘッダーからトークンを取得
	token := BearerToken(r)
	if token == "" {
		return nil
	}

	// 2. トークンを検証（失敗理由はTokenVerifier側で記録される）
	if !tokens.Validate(token) {
		return nil
	}

	// 3. アカウントIDを取り出してアカウントを読み込む
	accountID, err := tokens.DecodeAccountID(token)
	if err != nil {
		logger.Warn("failed to decode validated token", slog.String("error", err.Error()))
		return nil
	}

	account, err := accounts.FindByID(r.Context(), accountID)
	if err != nil {
		logger.Error("failed to load account for token",
			slog.Int64("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if account == nil {
		logger.Warn("token subject account no longer exists",
			slog.Int64("account_id", accountID),
		)
		return nil
	}

	// 4. ロールから権限を導出してPrincipalを生成
	return model.NewPrincipal(account)
}

// BearerToken はAuthorizationヘッダーからBearerプレフィックスを除いたトークンを返す。
// ヘッダーがない、または形式が異なる場合は空文字列を返す。
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// NewRequireAuthenticatedMiddleware はPrincipalがないリクエストに401を返すミドルウェアを返す。
// NewAuthenticatorMiddlewareの後に配置する。
func NewRequireAuthenticatedMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := PrincipalFromContext(r.Context()); err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ErrNoPrincipal はコンテキストにPrincipalがないことを示す。
var ErrNoPrincipal = errors.New("principal not found in context")

// PrincipalFromContext はリクエストコンテキストからPrincipalを取得する。
func PrincipalFromContext(ctx context.Context) (*model.Principal, error) {
	principal, ok := ctx.Value(principalContextKey).(*model.Principal)
	if !ok || principal == nil || principal.Account == nil {
		return nil, ErrNoPrincipal
	}
	return principal, nil
}

// OptionalPrincipal はPrincipalを返す。未認証の場合はnilを返す。
func OptionalPrincipal(ctx context.Context) *model.Principal {
	principal, _ := PrincipalFromContext(ctx)
	return principal
}

// ContextWithPrincipal はコンテキストにPrincipalを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, principal *model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}
