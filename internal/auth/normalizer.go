package auth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/ideaforge/internal/model"
)

// attributeExtractor はプロバイダー固有のユーザー情報から正規化に必要な項目を取り出す。
// 対応プロバイダーごとに1つの実装を持つ。
type attributeExtractor interface {
	providerID(attrs map[string]any) string
	email(attrs map[string]any) string
	displayName(attrs map[string]any) string
}

// googleExtractor はトップレベルに sub, email, name を持つペイロードを扱う。
type googleExtractor struct{}

func (googleExtractor) providerID(attrs map[string]any) string  { return stringAttr(attrs, "sub") }
func (googleExtractor) email(attrs map[string]any) string       { return stringAttr(attrs, "email") }
func (googleExtractor) displayName(attrs map[string]any) string { return stringAttr(attrs, "name") }

// kakaoExtractor は数値の id をトップレベルに持ち、
// メールアドレスを kakao_account、ニックネームを properties の下に持つペイロードを扱う。
type kakaoExtractor struct{}

func (kakaoExtractor) providerID(attrs map[string]any) string { return stringAttr(attrs, "id") }
func (kakaoExtractor) email(attrs map[string]any) string {
	return stringAttr(nestedAttr(attrs, "kakao_account"), "email")
}
func (kakaoExtractor) displayName(attrs map[string]any) string {
	return stringAttr(nestedAttr(attrs, "properties"), "nickname")
}

// naverExtractor は全項目を response オブジェクトの下に持つペイロードを扱う。
type naverExtractor struct{}

func (naverExtractor) providerID(attrs map[string]any) string {
	return stringAttr(nestedAttr(attrs, "response"), "id")
}
func (naverExtractor) email(attrs map[string]any) string {
	return stringAttr(nestedAttr(attrs, "response"), "email")
}
func (naverExtractor) displayName(attrs map[string]any) string {
	return stringAttr(nestedAttr(attrs, "response"), "name")
}

var extractors = map[model.Provider]attributeExtractor{
	model.ProviderGoogle: googleExtractor{},
	model.ProviderKakao:  kakaoExtractor{},
	model.ProviderNaver:  naverExtractor{},
}

// Normalize はプロバイダー固有のユーザー情報をCanonicalIdentityに変換する。
// 未対応のプロバイダー名の場合はUnsupportedProviderエラーを返す。
// メールアドレスが無いことはここではエラーにしない（呼び出し側で検査する）。
func Normalize(providerName string, attrs map[string]any) (*model.CanonicalIdentity, error) {
	provider, ok := model.ParseLoginProvider(providerName)
	if !ok {
		return nil, model.NewUnsupportedProviderError(providerName)
	}
	ext := extractors[provider]

	id := ext.providerID(attrs)
	if id == "" {
		return nil, fmt.Errorf("%s user info has no provider id", provider)
	}

	return &model.CanonicalIdentity{
		Provider:    provider,
		ProviderID:  id,
		Email:       ext.email(attrs),
		DisplayName: ext.displayName(attrs),
	}, nil
}

// nestedAttr はキーに対応する子オブジェクトを返す。存在しない場合はnilを返す。
func nestedAttr(attrs map[string]any, key string) map[string]any {
	if attrs == nil {
		return nil
	}
	m, _ := attrs[key].(map[string]any)
	return m
}

// stringAttr はキーに対応する値を文字列として返す。
// JSONの数値は指数表記にならないよう整数文字列に変換する。
func stringAttr(attrs map[string]any, key string) string {
	if attrs == nil {
		return ""
	}
	switch v := attrs[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}
