package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MinJWTSecretLength はJWT署名鍵の最小バイト数。
const MinJWTSecretLength = 32

// OAuthProviderConfig は1つのOAuthプロバイダーの設定。
type OAuthProviderConfig struct {
	Name         string // GOOGLE, KAKAO, NAVER
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Token
	JWTSecret   string
	JWTLifetime time.Duration

	// OAuth
	// クライアントIDが設定されたプロバイダーだけが登録される。
	OAuthProviders         []OAuthProviderConfig
	OAuthStateCookieSecure bool
	FrontendCallbackURL    string
	FrontendErrorURL       string

	// Brainstorming engine
	BrainstormAPIURL          string
	BrainstormStepTimeout     time.Duration
	BrainstormRunTimeout      time.Duration
	BrainstormTeardownTimeout time.Duration

	// Retention
	RetentionWindow time.Duration
	SweepTimeOfDay  string

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral    int
	RateLimitBrainstorm int

	// Admin seed
	AdminEmail string
	AdminName  string

	// Server
	ServerPort        string
	WorkerMetricsPort string // workerモードで/metricsを公開するポート

	// CORS
	CORSAllowedOrigins string // カンマ区切り
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.BrainstormAPIURL = strings.TrimRight(os.Getenv("BRAINSTORM_API_URL"), "/")
	if cfg.BrainstormAPIURL == "" {
		missing = append(missing, "BRAINSTORM_API_URL")
	}

	providers, providerMissing := loadOAuthProviders()
	missing = append(missing, providerMissing...)
	cfg.OAuthProviders = providers

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.JWTSecret) < MinJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", MinJWTSecretLength, len(cfg.JWTSecret))
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 20)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.JWTLifetime = getEnvDuration("JWT_LIFETIME", 2*time.Hour)
	cfg.FrontendCallbackURL = getEnvString("FRONTEND_CALLBACK_URL", "http://localhost:3000/oauth/callback")
	cfg.FrontendErrorURL = getEnvString("FRONTEND_ERROR_URL", "http://localhost:3000/login")
	cfg.OAuthStateCookieSecure = getEnvBool("OAUTH_STATE_COOKIE_SECURE", strings.HasPrefix(cfg.FrontendCallbackURL, "https://"))
	cfg.BrainstormStepTimeout = getEnvDuration("BRAINSTORM_STEP_TIMEOUT", 60*time.Second)
	cfg.BrainstormRunTimeout = getEnvDuration("BRAINSTORM_RUN_TIMEOUT", 5*time.Minute)
	cfg.BrainstormTeardownTimeout = getEnvDuration("BRAINSTORM_TEARDOWN_TIMEOUT", 10*time.Second)
	cfg.RetentionWindow = getEnvDuration("RETENTION_WINDOW", 24*time.Hour)
	cfg.SweepTimeOfDay = getEnvString("SWEEP_TIME_OF_DAY", "03:00")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitBrainstorm = getEnvInt("RATE_LIMIT_BRAINSTORM", 5)
	cfg.AdminEmail = getEnvString("ADMIN_EMAIL", "")
	cfg.AdminName = getEnvString("ADMIN_NAME", "admin")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "9090")
	cfg.CORSAllowedOrigins = getEnvString("CORS_ALLOWED_ORIGINS", "http://localhost:3000")

	if _, err := time.Parse("15:04", cfg.SweepTimeOfDay); err != nil {
		return nil, fmt.Errorf("SWEEP_TIME_OF_DAY must be HH:MM, got %q", cfg.SweepTimeOfDay)
	}
	if cfg.JWTLifetime <= 0 {
		return nil, fmt.Errorf("JWT_LIFETIME must be positive, got %v", cfg.JWTLifetime)
	}

	return cfg, nil
}

// loadOAuthProviders はGOOGLE_/KAKAO_/NAVER_ で始まる環境変数からプロバイダー設定を読み込む。
// CLIENT_IDが空のプロバイダーは登録しない。CLIENT_IDだけ設定されている場合は不足分を返す。
func loadOAuthProviders() ([]OAuthProviderConfig, []string) {
	var (
		providers []OAuthProviderConfig
		missing   []string
	)
	for _, name := range []string{"GOOGLE", "KAKAO", "NAVER"} {
		p := OAuthProviderConfig{
			Name:         name,
			ClientID:     os.Getenv(name + "_CLIENT_ID"),
			ClientSecret: os.Getenv(name + "_CLIENT_SECRET"),
			RedirectURL:  os.Getenv(name + "_REDIRECT_URL"),
		}
		if p.ClientID == "" {
			continue
		}
		if p.ClientSecret == "" {
			missing = append(missing, name+"_CLIENT_SECRET")
		}
		if p.RedirectURL == "" {
			missing = append(missing, name+"_REDIRECT_URL")
		}
		providers = append(providers, p)
	}
	return providers, missing
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
