package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/ideaforge/internal/model"
)

// maxUserInfoSize はプロバイダーから受け取るレスポンスの上限サイズ。
const maxUserInfoSize = 1 << 20

// OAuthProvider は外部IDプロバイダーによるOAuth 2.0ログインのインターフェース。
type OAuthProvider interface {
	// Provider はこのプロバイダーの種別を返す。
	Provider() model.Provider
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをアクセストークンに交換し、
	// プロバイダー固有の形式のままユーザー情報を返す。
	ExchangeCode(ctx context.Context, code, state string) (map[string]any, error)
}

// OAuthEndpoints はプロバイダーごとのエンドポイントとスコープ。
type OAuthEndpoints struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	Scopes      []string
	// SendStateOnExchange はトークン交換時にもstateを送るかどうか（Naverで必要）。
	SendStateOnExchange bool
}

// DefaultEndpoints は対応プロバイダーの本番エンドポイントを返す。
func DefaultEndpoints(provider model.Provider) (OAuthEndpoints, bool) {
	switch provider {
	case model.ProviderGoogle:
		return OAuthEndpoints{
			AuthURL:     "https://accounts.google.com/o/oauth2/auth",
			TokenURL:    "https://oauth2.googleapis.com/token",
			UserInfoURL: "https://www.googleapis.com/oauth2/v3/userinfo",
			Scopes:      []string{"openid", "email", "profile"},
		}, true
	case model.ProviderKakao:
		return OAuthEndpoints{
			AuthURL:     "https://kauth.kakao.com/oauth/authorize",
			TokenURL:    "https://kauth.kakao.com/oauth/token",
			UserInfoURL: "https://kapi.kakao.com/v2/user/me",
			Scopes:      []string{"profile_nickname", "account_email"},
		}, true
	case model.ProviderNaver:
		return OAuthEndpoints{
			AuthURL:             "https://nid.naver.com/oauth2.0/authorize",
			TokenURL:            "https://nid.naver.com/oauth2.0/token",
			UserInfoURL:         "https://openapi.naver.com/v1/nid/me",
			SendStateOnExchange: true,
		}, true
	default:
		return OAuthEndpoints{}, false
	}
}

// OAuthConfig はOAuthプロバイダーの設定。
type OAuthConfig struct {
	Provider     model.Provider
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なエンドポイント。ゼロ値の場合はDefaultEndpointsを使う。
	Endpoints OAuthEndpoints
}

// OAuth2Provider は認可コードフローを実装する汎用のプロバイダー。
type OAuth2Provider struct {
	config     OAuthConfig
	httpClient *http.Client
}

// NewOAuth2Provider はOAuth2Providerを生成する。
// httpClientがnilの場合はhttp.DefaultClientを使用する。
func NewOAuth2Provider(config OAuthConfig, httpClient *http.Client) (*OAuth2Provider, error) {
	defaults, ok := DefaultEndpoints(config.Provider)
	if !ok {
		return nil, model.NewUnsupportedProviderError(string(config.Provider))
	}
	if config.Endpoints.AuthURL == "" {
		config.Endpoints.AuthURL = defaults.AuthURL
	}
	if config.Endpoints.TokenURL == "" {
		config.Endpoints.TokenURL = defaults.TokenURL
	}
	if config.Endpoints.UserInfoURL == "" {
		config.Endpoints.UserInfoURL = defaults.UserInfoURL
	}
	if config.Endpoints.Scopes == nil {
		config.Endpoints.Scopes = defaults.Scopes
	}
	config.Endpoints.SendStateOnExchange = config.Endpoints.SendStateOnExchange || defaults.SendStateOnExchange

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuth2Provider{config: config, httpClient: httpClient}, nil
}

// Provider はプロバイダー種別を返す。
func (p *OAuth2Provider) Provider() model.Provider {
	return p.config.Provider
}

// GetLoginURL は認証URLを生成する。
func (p *OAuth2Provider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"state":         {state},
	}
	if len(p.config.Endpoints.Scopes) > 0 {
		params.Set("scope", strings.Join(p.config.Endpoints.Scopes, " "))
	}
	return p.config.Endpoints.AuthURL + "?" + params.Encode()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	// Naverはエラー時もHTTP 200でerrorフィールドを返す
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *OAuth2Provider) ExchangeCode(ctx context.Context, code, state string) (map[string]any, error) {
	// 1. 認可コードをアクセストークンに交換
	accessToken, err := p.exchangeToken(ctx, code, state)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. アクセストークンでユーザー情報を取得
	attrs, err := p.fetchUserInfo(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	return attrs, nil
}

func (p *OAuth2Provider) exchangeToken(ctx context.Context, code, state string) (string, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}
	if p.config.Endpoints.SendStateOnExchange {
		data.Set("state", state)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoints.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := p.do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.Error != "" {
		return "", fmt.Errorf("token endpoint returned %s: %s", tokenResp.Error, tokenResp.ErrorDescription)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}
	return tokenResp.AccessToken, nil
}

// fetchUserInfo はユーザー情報をmapとして返す。
// 数値IDの精度を落とさないためjson.Numberとしてデコードする。
func (p *OAuth2Provider) fetchUserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.Endpoints.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}
	return attrs, nil
}

func (p *OAuth2Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// compile-time interface check
var _ OAuthProvider = (*OAuth2Provider)(nil)
