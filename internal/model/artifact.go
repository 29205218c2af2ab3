package model

import "time"

// GeneratedPurposeMarker はブレインストーミングエンジンが生成したアイデアのpurposeに設定する固定文字列。
const GeneratedPurposeMarker = "generated by brainstorming engine"

// Artifact はブレインストーミングで生成された1件のアイデアを表す。
// AccountIDとGuestSessionTokenはちょうど一方だけが設定される。
type Artifact struct {
	ID                int64     `json:"id"`
	AccountID         *int64    `json:"accountId"`
	GuestSessionToken *string   `json:"guestSessionToken"`
	Title             string    `json:"title"`
	Body              string    `json:"content"`
	Purpose           string    `json:"purpose"`
	SourceSessionID   string    `json:"sessionId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// IsGuestOwned はゲスト所有のアイデアかどうかを返す。
func (a *Artifact) IsGuestOwned() bool {
	return a.AccountID == nil && a.GuestSessionToken != nil
}

// Owner はアイデアの所有者を表す。AccountIDが設定されていればそちらが優先される。
type Owner struct {
	AccountID         *int64
	GuestSessionToken string
}

// IsEmpty は所有者が指定されていないかどうかを返す。
func (o Owner) IsEmpty() bool {
	return o.AccountID == nil && o.GuestSessionToken == ""
}

// IsAccount はアカウント所有かどうかを返す。
func (o Owner) IsAccount() bool {
	return o.AccountID != nil
}
