package auth

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/ideaforge/internal/model"
)

// decodeAttrs はプロバイダーのレスポンスと同じ方法でJSONをデコードする。
func decodeAttrs(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		t.Fatalf("failed to decode attrs: %v", err)
	}
	return attrs
}

func TestNormalize_SupportedProviders(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		payload  string
		want     model.CanonicalIdentity
	}{
		{
			name:     "google top-level fields",
			provider: "google",
			payload:  `{"sub":"1078","email":"taro@example.com","name":"Taro"}`,
			want: model.CanonicalIdentity{
				Provider: model.ProviderGoogle, ProviderID: "1078",
				Email: "taro@example.com", DisplayName: "Taro",
			},
		},
		{
			name:     "kakao numeric id is coerced to string",
			provider: "kakao",
			payload:  `{"id":3141592653,"kakao_account":{"email":"k@example.com"},"properties":{"nickname":"Kim"}}`,
			want: model.CanonicalIdentity{
				Provider: model.ProviderKakao, ProviderID: "3141592653",
				Email: "k@example.com", DisplayName: "Kim",
			},
		},
		{
			name:     "naver nested response object",
			provider: "NAVER",
			payload:  `{"resultcode":"00","response":{"id":"nv-77","email":"n@example.com","name":"Lee"}}`,
			want: model.CanonicalIdentity{
				Provider: model.ProviderNaver, ProviderID: "nv-77",
				Email: "n@example.com", DisplayName: "Lee",
			},
		},
		{
			name:     "kakao without email scope",
			provider: "kakao",
			payload:  `{"id":42,"properties":{"nickname":"NoMail"}}`,
			want: model.CanonicalIdentity{
				Provider: model.ProviderKakao, ProviderID: "42", DisplayName: "NoMail",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.provider, decodeAttrs(t, tt.payload))
			if err != nil {
				t.Fatalf("Normalize returned error: %v", err)
			}
			if *got != tt.want {
				t.Errorf("Normalize = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestNormalize_Float64ID(t *testing.T) {
	// UseNumberを使わずにデコードされた場合でも指数表記にならないこと
	got, err := Normalize("kakao", map[string]any{"id": float64(3141592653)})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got.ProviderID != "3141592653" {
		t.Errorf("ProviderID = %q, want %q", got.ProviderID, "3141592653")
	}
}

func TestNormalize_UnsupportedProvider(t *testing.T) {
	for _, name := range []string{"github", "local", ""} {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(name, map[string]any{"sub": "1"})
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Code != model.ErrCodeUnsupportedProvider {
				t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeUnsupportedProvider)
			}
		})
	}
}

func TestNormalize_MissingProviderID(t *testing.T) {
	_, err := Normalize("naver", map[string]any{"resultcode": "024"})
	if err == nil {
		t.Fatal("expected error for payload without id")
	}
}
