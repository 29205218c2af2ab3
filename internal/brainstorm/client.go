// Package brainstorm はブレインストーミングエンジンとの多段階プロトコルと、
// その結果をアイデアとして永続化するオーケストレーションを提供する。
package brainstorm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	// apiPrefix はエンジンのブレインストーミングAPIのパス。
	apiPrefix = "/api/v1/brainstorming"
	// maxResponseSize はエンジンから受け取るレスポンスの上限サイズ。
	maxResponseSize = 4 << 20
)

// Idea はエンジンが生成した1件のアイデア。
type Idea struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Analysis    string `json:"analysis"`
}

// StatusError はエンジンが2xx以外のステータスを返したことを表す。
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s がステータス %d を返しました: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client はブレインストーミングエンジンのHTTPクライアント。
// ステップごとのタイムアウトはhttpClient.Timeoutで設定する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLにはエンジンのルートURL（例: http://engine:8000）を指定する。
func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// CreateSession はセッションを開始し、セッションIDを返す。
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var resp createSessionResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/session", nil, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("エンジンが空のセッションIDを返しました")
	}
	return resp.SessionID, nil
}

type purposeRequest struct {
	SessionID string `json:"session_id"`
	Purpose   string `json:"purpose"`
}

// SubmitPurpose はブレインストーミングの目的を送信する。
func (c *Client) SubmitPurpose(ctx context.Context, sessionID, purpose string) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/purpose",
		purposeRequest{SessionID: sessionID, Purpose: purpose}, nil)
}

type warmupResponse struct {
	Questions []string `json:"questions"`
}

// FetchWarmup はウォームアップ質問を取得する。
func (c *Client) FetchWarmup(ctx context.Context, sessionID string) ([]string, error) {
	var resp warmupResponse
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/warmup/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Questions, nil
}

// ConfirmWarmup はウォームアップの完了を通知する。
func (c *Client) ConfirmWarmup(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/confirm/"+url.PathEscape(sessionID), nil, nil)
}

type associationsRequest struct {
	SessionID    string   `json:"session_id"`
	Associations []string `json:"associations"`
}

// SubmitAssociations は自由連想キーワードを送信する。
func (c *Client) SubmitAssociations(ctx context.Context, sessionID string, associations []string) error {
	if associations == nil {
		associations = []string{}
	}
	return c.do(ctx, http.MethodPost, apiPrefix+"/associations/"+url.PathEscape(sessionID),
		associationsRequest{SessionID: sessionID, Associations: associations}, nil)
}

type ideasResponse struct {
	Ideas []Idea `json:"ideas"`
}

// FetchIdeas は生成されたアイデアをエンジンが返した順で取得する。
func (c *Client) FetchIdeas(ctx context.Context, sessionID string) ([]Idea, error) {
	var resp ideasResponse
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/ideas/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Ideas, nil
}

// DeleteSession はセッションを破棄する。
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, apiPrefix+"/session/"+url.PathEscape(sessionID), nil, nil)
}

// Health はエンジンの/healthエンドポイントで疎通を確認する。
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// do はJSONリクエストを送り、2xxの場合にレスポンスをoutへデコードする。
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ブレインストーミングエンジンの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("ブレインストーミングエンジンがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
