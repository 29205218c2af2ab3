package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/ideaforge/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier      middleware.TokenVerifier
	AccountFinder      middleware.AccountFinder
	Logger             *slog.Logger
	CORSAllowedOrigins string // カンマ区切り
	SecurityHeaders    middleware.SecurityHeadersConfig
	RateLimiter        *middleware.RateLimiter
	StatusRecorder     middleware.StatusRecorder // nilの場合はステータスを記録しない

	// 運用エンドポイント
	ReadinessChecks []ReadinessCheck
	MetricsHandler  http.Handler // nilの場合は/metricsを公開しない

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ブレインストーミングとアイデア
	BrainstormService BrainstormServiceInterface
	IdeaService       IdeaServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Authenticator → Logging → StatusMetrics → RateLimit
//
// Authenticatorはトークンが無効でも失敗せず、匿名リクエストとして後続に渡す。
// ヘルスチェックと/metricsはレート制限の対象外とする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecurityHeaders))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middleware.NewAuthenticatorMiddleware(deps.TokenVerifier, deps.AccountFinder, logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewStatusMetricsMiddleware(deps.StatusRecorder))
	}

	healthHandler := NewHealthHandler(deps.ReadinessChecks...)
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	brainstormHandler := NewBrainstormHandler(deps.BrainstormService)
	ideaHandler := NewIdeaHandler(deps.IdeaService)
	userHandler := NewUserHandler(deps.UserService)

	requireAuth := middleware.NewRequireAuthenticatedMiddleware()

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- レート制限の対象となるルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 認証ルート（OAuthフロー）
		r.Route("/auth/{provider}", func(r chi.Router) {
			r.Get("/login", authHandler.Login)
			r.Get("/callback", authHandler.Callback)
		})

		// POST /api/brainstorm - 専用のレート制限を追加
		r.With(deps.RateLimiter.BrainstormMiddleware()).Post("/api/brainstorm", brainstormHandler.Brainstorm)

		// アイデア管理
		r.Route("/api/ideas", func(r chi.Router) {
			r.Get("/", ideaHandler.ListIdeas)
			r.Get("/count", ideaHandler.CountIdeas)
			r.With(requireAuth).Post("/link-guest", ideaHandler.LinkGuest)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", ideaHandler.GetIdea)
				r.Delete("/", ideaHandler.DeleteIdea)
			})
		})

		// 認証が必要なルート
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/api/auth/me", authHandler.Me)

			r.Route("/api/users/{id}", func(r chi.Router) {
				r.Get("/", userHandler.GetUser)
				r.Delete("/", userHandler.DeleteUser)
			})
		})
	})

	return r
}
