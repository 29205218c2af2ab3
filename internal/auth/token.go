package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/ideaforge/internal/model"
)

// MinSecretLength はHS256の署名鍵として受け付ける最小バイト数。
const MinSecretLength = 32

// トークン検証失敗の分類
const (
	RejectEmpty        = "empty"
	RejectMalformed    = "malformed"
	RejectExpired      = "expired"
	RejectBadSignature = "bad_signature"
	RejectUnverifiable = "unverifiable"
	RejectInvalid      = "invalid"
)

// Claims はベアラートークンに埋め込むクレーム。
// SubjectにアカウントIDを10進文字列で格納する。
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RejectionRecorder はトークン拒否をメトリクスに記録する。
type RejectionRecorder interface {
	RecordTokenRejected(reason string)
}

// TokenConfig はトークンサービスの設定。起動時に1回だけ構築する。
type TokenConfig struct {
	Secret   []byte
	Lifetime time.Duration
}

// TokenService は署名付きベアラートークンの発行と検証を行う。
// 生成後は状態を変更しないため、複数のgoroutineから同時に利用できる。
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	logger   *slog.Logger
	recorder RejectionRecorder
	now      func() time.Time
}

// NewTokenService はTokenServiceを生成する。
// 署名鍵がMinSecretLengthより短い場合、または有効期間が正でない場合はエラーを返す。
func NewTokenService(cfg TokenConfig, logger *slog.Logger, recorder RejectionRecorder) (*TokenService, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes, got %d", MinSecretLength, len(cfg.Secret))
	}
	if cfg.Lifetime <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive, got %v", cfg.Lifetime)
	}
	if logger == nil {
		logger = slog.Default()
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &TokenService{
		secret:   secret,
		lifetime: cfg.Lifetime,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}, nil
}

// Issue はアカウントIDとロールを埋め込んだトークンを発行する。
func (s *TokenService) Issue(account *model.Account) (string, error) {
	now := s.now()
	claims := Claims{
		Role: string(account.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(account.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate は署名と有効期限を検証する。
// 失敗理由は分類してログとメトリクスに記録し、呼び出し元にはfalseだけを返す。
func (s *TokenService) Validate(tokenString string) bool {
	if _, err := s.parse(tokenString); err != nil {
		reason := classifyTokenError(err)
		s.logger.Debug("token_rejected", slog.String("reason", reason))
		if s.recorder != nil {
			s.recorder.RecordTokenRejected(reason)
		}
		return false
	}
	return true
}

// DecodeAccountID はトークンからアカウントIDを取り出す。
// Validateに成功したトークンに対して呼ぶこと。無効なトークンにはTokenDecodeErrorを返す。
func (s *TokenService) DecodeAccountID(tokenString string) (int64, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return 0, model.NewTokenDecodeError(err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, model.NewTokenDecodeError(fmt.Errorf("subject is not an account id: %w", err))
	}
	return id, nil
}

func (s *TokenService) parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errEmptyToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

var (
	errEmptyToken   = errors.New("token is empty")
	errInvalidToken = errors.New("token is invalid")
)

// classifyTokenError は検証エラーを診断用の分類に変換する。
func classifyTokenError(err error) string {
	switch {
	case errors.Is(err, errEmptyToken):
		return RejectEmpty
	case errors.Is(err, jwt.ErrTokenMalformed):
		return RejectMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return RejectExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return RejectBadSignature
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return RejectUnverifiable
	default:
		return RejectInvalid
	}
}
