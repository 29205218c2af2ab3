// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, brainstorm, system
	Action   string // ユーザー向け対処方法
	Cause    error  // 原因エラー（レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Cause
}

// 定義済みエラーコード
const (
	ErrCodeUnsupportedProvider   = "UNSUPPORTED_PROVIDER"
	ErrCodeEmailRequired         = "EMAIL_REQUIRED"
	ErrCodeInvalidToken          = "INVALID_TOKEN"
	ErrCodeTokenDecode           = "TOKEN_DECODE_ERROR"
	ErrCodeOwnershipRequired     = "OWNERSHIP_REQUIRED"
	ErrCodeRemoteProtocolFailure = "REMOTE_PROTOCOL_FAILURE"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeAuthRequired          = "AUTH_REQUIRED"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// NewUnsupportedProviderError は未対応のIDプロバイダーエラーを生成する。
func NewUnsupportedProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedProvider,
		Message:  fmt.Sprintf("未対応のログインプロバイダーです: %s", provider),
		Category: "auth",
		Action:   "Google、Kakao、Naverのいずれかでログインしてください。",
	}
}

// NewEmailRequiredError はプロバイダーがメールアドレスを提供しなかった場合のエラーを生成する。
func NewEmailRequiredError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailRequired,
		Message:  fmt.Sprintf("%s からメールアドレスを取得できませんでした。", provider),
		Category: "auth",
		Action:   "ログイン時にメールアドレスの提供に同意してください。",
	}
}

// NewInvalidTokenError は無効なトークンエラーを生成する。
func NewInvalidTokenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  fmt.Sprintf("トークンが無効です: %s", reason),
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewTokenDecodeError は検証されていないトークンをデコードしようとした場合のエラーを生成する。
func NewTokenDecodeError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeTokenDecode,
		Message:  "トークンからアカウントIDを取り出せません。",
		Category: "system",
		Action:   "ログインし直してください。",
		Cause:    cause,
	}
}

// NewOwnershipRequiredError はアカウントIDもゲストトークンも指定されていない場合のエラーを生成する。
func NewOwnershipRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeOwnershipRequired,
		Message:  "アカウントIDまたはゲストセッショントークンのいずれかが必要です。",
		Category: "validation",
		Action:   "ログインするか、ゲストセッショントークンを指定してください。",
	}
}

// NewRemoteProtocolFailureError はブレインストーミングエンジンとの通信の失敗を表すエラーを生成する。
// stepには失敗したステップ名を指定する。
func NewRemoteProtocolFailureError(step string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeRemoteProtocolFailure,
		Message:  fmt.Sprintf("ブレインストーミングエンジンとの通信に失敗しました（%s）", step),
		Category: "brainstorm",
		Action:   "しばらく待ってから最初からやり直してください。",
		Cause:    cause,
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError(resource string, id int64) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %d", resource, id),
		Category: "validation",
		Action:   "IDを確認してください。",
	}
}

// NewAuthRequiredError は認証が必要なエンドポイントに未認証でアクセスした場合のエラーを生成する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewForbiddenError は他のアカウントのリソースにアクセスしようとした場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "このリソースにアクセスする権限がありません。",
		Category: "auth",
		Action:   "自分のアカウントのリソースのみ操作できます。",
	}
}

// NewValidationError は入力値エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はCauseに保持し、レスポンスには含めない。
func NewInternalError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Cause:    cause,
	}
}
