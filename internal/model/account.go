package model

import (
	"strings"
	"time"
)

// Provider はアカウントの発行元を表す。
type Provider string

const (
	ProviderLocal  Provider = "LOCAL"
	ProviderGoogle Provider = "GOOGLE"
	ProviderKakao  Provider = "KAKAO"
	ProviderNaver  Provider = "NAVER"
)

// ParseLoginProvider は外部ログインに使えるプロバイダー名を解析する。
// 大文字小文字は区別しない。LOCALは外部ログインに使えないためfalseを返す。
func ParseLoginProvider(name string) (Provider, bool) {
	switch p := Provider(strings.ToUpper(strings.TrimSpace(name))); p {
	case ProviderGoogle, ProviderKakao, ProviderNaver:
		return p, true
	default:
		return "", false
	}
}

// Role はアカウントの権限を表す。
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Authority はリクエスト主体に付与する権限名を返す（例: ROLE_USER）。
func (r Role) Authority() string {
	return "ROLE_" + string(r)
}

// Account はログイン済みのアカウントを表す。
// (Provider, ProviderID) の組でちょうど1件に特定される。
type Account struct {
	ID          int64     `json:"accountId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Provider    Provider  `json:"provider"`
	ProviderID  string    `json:"-"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CanonicalIdentity はプロバイダー固有のユーザー情報を正規化した一時的なビュー。
// 永続化されない。EmailとDisplayNameは取得できなかった場合は空文字列になる。
type CanonicalIdentity struct {
	Provider    Provider
	ProviderID  string
	Email       string
	DisplayName string
}

// Principal は認証済みリクエストの主体を表す。
type Principal struct {
	Account   *Account
	Authority string
}

// NewPrincipal はアカウントのロールから権限名を導出してPrincipalを生成する。
func NewPrincipal(account *Account) *Principal {
	return &Principal{Account: account, Authority: account.Role.Authority()}
}

// IsAdmin は管理者権限を持つかどうかを返す。
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Authority == RoleAdmin.Authority()
}

// CanActFor は指定アカウントのリソースを操作できるかを返す（本人または管理者）。
func (p *Principal) CanActFor(accountID int64) bool {
	if p == nil || p.Account == nil {
		return false
	}
	return p.Account.ID == accountID || p.IsAdmin()
}
