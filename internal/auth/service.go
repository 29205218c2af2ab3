// Package auth は外部IDプロバイダーによるログイン、アカウント解決、ベアラートークンの発行と検証を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/hitoshi/ideaforge/internal/model"
)

// LoginRecorder はログイン結果をメトリクスに記録する。
type LoginRecorder interface {
	RecordLogin(provider, outcome string)
}

// LoginResult はログイン完了時に呼び出し元へ返す情報。
type LoginResult struct {
	Account *model.Account
	Token   string
}

// Service はOAuthログインフロー全体を扱う。
type Service struct {
	providers map[model.Provider]OAuthProvider
	resolver  *AccountResolver
	tokens    *TokenService
	recorder  LoginRecorder
	logger    *slog.Logger
}

// NewService はServiceを生成する。providersには設定済みのプロバイダーだけを渡す。
func NewService(
	providers []OAuthProvider,
	resolver *AccountResolver,
	tokens *TokenService,
	recorder LoginRecorder,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[model.Provider]OAuthProvider, len(providers))
	for _, p := range providers {
		byName[p.Provider()] = p
	}
	return &Service{
		providers: byName,
		resolver:  resolver,
		tokens:    tokens,
		recorder:  recorder,
		logger:    logger,
	}
}

// GetLoginURL は指定プロバイダーの認証URLを生成する。
// 未対応または未設定のプロバイダーの場合はUnsupportedProviderエラーを返す。
func (s *Service) GetLoginURL(providerName, state string) (string, error) {
	p, err := s.lookup(providerName)
	if err != nil {
		return "", err
	}
	return p.GetLoginURL(state), nil
}

// Supports は指定プロバイダーが登録済みかどうかを返す。
func (s *Service) Supports(providerName string) bool {
	_, err := s.lookup(providerName)
	return err == nil
}

// HandleCallback はOAuthコールバックを処理し、ベアラートークンを発行する。
// プロバイダーがメールアドレスを返さなかった場合はEmailRequiredエラーを返す。
func (s *Service) HandleCallback(ctx context.Context, providerName, code, state string) (*LoginResult, error) {
	p, err := s.lookup(providerName)
	if err != nil {
		return nil, err
	}
	provider := string(p.Provider())

	result, err := s.completeLogin(ctx, p, code, state)
	if err != nil {
		s.record(provider, "failure")
		return nil, err
	}
	s.record(provider, "success")
	return result, nil
}

func (s *Service) completeLogin(ctx context.Context, p OAuthProvider, code, state string) (*LoginResult, error) {
	// 1. 認可コードを交換し、プロバイダー固有のユーザー情報を取得
	attrs, err := p.ExchangeCode(ctx, code, state)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. 正規化
	identity, err := Normalize(string(p.Provider()), attrs)
	if err != nil {
		return nil, err
	}

	// 3. メールアドレスが無ければログインを中止
	if identity.Email == "" {
		s.logger.Warn("provider withheld email",
			slog.String("provider", string(identity.Provider)),
		)
		return nil, model.NewEmailRequiredError(string(identity.Provider))
	}

	// 4. アカウントを特定または作成
	account, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	// 5. トークンを発行
	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.logger.Info("user logged in",
		slog.Int64("account_id", account.ID),
		slog.String("provider", string(account.Provider)),
	)
	return &LoginResult{Account: account, Token: token}, nil
}

func (s *Service) lookup(providerName string) (OAuthProvider, error) {
	provider, ok := model.ParseLoginProvider(providerName)
	if !ok {
		return nil, model.NewUnsupportedProviderError(providerName)
	}
	p, ok := s.providers[provider]
	if !ok {
		return nil, model.NewUnsupportedProviderError(providerName)
	}
	return p, nil
}

func (s *Service) record(provider, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordLogin(provider, outcome)
	}
}

// GenerateState はOAuthのstateパラメータに使う乱数文字列を生成する。
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
