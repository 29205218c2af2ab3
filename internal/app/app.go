package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/ideaforge/internal/account"
	"github.com/hitoshi/ideaforge/internal/artifact"
	"github.com/hitoshi/ideaforge/internal/auth"
	"github.com/hitoshi/ideaforge/internal/brainstorm"
	"github.com/hitoshi/ideaforge/internal/config"
	"github.com/hitoshi/ideaforge/internal/database"
	"github.com/hitoshi/ideaforge/internal/handler"
	"github.com/hitoshi/ideaforge/internal/logger"
	"github.com/hitoshi/ideaforge/internal/metrics"
	"github.com/hitoshi/ideaforge/internal/middleware"
	"github.com/hitoshi/ideaforge/internal/model"
	"github.com/hitoshi/ideaforge/internal/repository"
	"github.com/hitoshi/ideaforge/internal/security"
	"github.com/hitoshi/ideaforge/internal/worker/sweeper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	dbPingTimeout       = 5 * time.Second
	oauthClientTimeout  = 10 * time.Second
	shutdownGracePeriod = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, known := LookupCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if !known {
		slog.Warn("unknown command, falling back to serve",
			slog.String("command", args[0]),
			slog.String("usage", Usage()),
		)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("brainstorm_api_url", cfg.BrainstormAPIURL),
		slog.Int("oauth_providers", len(cfg.OAuthProviders)),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// newMetricsRegistry はプロセスとランタイムのメトリクスを含むレジストリを生成する。
func newMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// newOAuthProviders は設定済みのプロバイダーだけを生成する。
// プロバイダーへの通信はSSRF対策済みのHTTPクライアントで行う。
func newOAuthProviders(cfgs []config.OAuthProviderConfig, httpClient *http.Client) ([]auth.OAuthProvider, error) {
	providers := make([]auth.OAuthProvider, 0, len(cfgs))
	for _, c := range cfgs {
		p, err := auth.NewOAuth2Provider(auth.OAuthConfig{
			Provider:     model.Provider(c.Name),
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
		}, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to configure oauth provider %s: %w", c.Name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// serverWriteTimeout はブレインストーミング1回分（セッション破棄を含む）が収まる書き込みタイムアウトを返す。
func serverWriteTimeout(cfg *config.Config) time.Duration {
	return cfg.BrainstormRunTimeout + cfg.BrainstormTeardownTimeout + 15*time.Second
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリとメトリクスの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	artifactRepo := repository.NewPostgresArtifactRepo(db)

	registry := newMetricsRegistry()
	collector := metrics.NewCollector(registry)

	// 3. 認証サービスの初期化
	authLog := logger.Component(log, "auth")
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:   []byte(cfg.JWTSecret),
		Lifetime: cfg.JWTLifetime,
	}, authLog, collector)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	providers, err := newOAuthProviders(cfg.OAuthProviders, security.NewSSRFGuard().NewSafeClient(oauthClientTimeout))
	if err != nil {
		return err
	}
	authService := auth.NewService(providers, auth.NewAccountResolver(accountRepo, authLog), tokens, collector, authLog)

	// 4. アカウントサービスと初期管理者
	accountService := account.NewService(accountRepo, logger.Component(log, "account"))
	if cfg.AdminEmail != "" {
		if _, err := accountService.EnsureAdmin(context.Background(), cfg.AdminEmail, cfg.AdminName); err != nil {
			return fmt.Errorf("failed to ensure admin account: %w", err)
		}
	}

	// 5. ブレインストーミングエンジンとオーケストレーター
	// エンジンは内部ネットワーク上のため、SSRFガードは通さない。
	brainstormLog := logger.Component(log, "brainstorm")
	engine := brainstorm.NewClient(&http.Client{Timeout: cfg.BrainstormStepTimeout}, cfg.BrainstormAPIURL, brainstormLog)
	orchestrator := brainstorm.NewOrchestrator(
		engine, artifactRepo, security.NewTextSanitizer(), collector,
		brainstorm.Timeouts{Run: cfg.BrainstormRunTimeout, Teardown: cfg.BrainstormTeardownTimeout},
		brainstormLog,
	)

	// 6. アイデアサービス
	artifactService := artifact.NewService(artifactRepo, artifact.NewReconciler(artifactRepo, logger.Component(log, "artifact")))

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitBrainstorm),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		TokenVerifier:      tokens,
		AccountFinder:      accountRepo,
		Logger:             log,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		SecurityHeaders:    middleware.SecurityHeadersConfig{HSTS: cfg.OAuthStateCookieSecure},
		RateLimiter:        rateLimiter,
		StatusRecorder:     collector,

		ReadinessChecks: []handler.ReadinessCheck{
			{Name: "database", Check: db.PingContext},
			{Name: "schema", Check: func(ctx context.Context) error { return database.CheckSchemaVersion(ctx, db) }},
			{Name: "brainstorm_engine", Check: engine.Health},
		},
		MetricsHandler: metrics.Handler(registry),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendCallbackURL: cfg.FrontendCallbackURL,
			FrontendErrorURL:    cfg.FrontendErrorURL,
			CookieSecure:        cfg.OAuthStateCookieSecure,
		},

		BrainstormService: handler.NewBrainstormServiceAdapter(artifactService, orchestrator),
		IdeaService:       artifactService,
		UserService:       accountService,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: serverWriteTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、ゲストアイデアの削除ジョブを日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	at, err := sweeper.ParseTimeOfDay(cfg.SweepTimeOfDay)
	if err != nil {
		return err
	}

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. 削除ジョブの初期化
	registry := newMetricsRegistry()
	collector := metrics.NewCollector(registry)
	sweep := sweeper.New(repository.NewPostgresArtifactRepo(db), collector, cfg.RetentionWindow, logger.Component(nil, "sweeper"))

	// 3. メトリクスエンドポイントの起動
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metrics.SetupMetricsRoute(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()
	defer metricsServer.Close()

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.String("sweep_time_of_day", at.String()),
		slog.Duration("retention", sweep.Retention),
	)

	// 起動直後に1回実行（停止中に過ぎた実行時刻の分を取り戻す）
	if _, err := sweep.Run(ctx); err != nil {
		slog.Error("initial sweep failed", slog.String("error", err.Error()))
	}

	// スケジューラをメインgoroutineで実行（ブロッキング）
	sweep.Start(ctx, at)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
