package security

import (
	"strings"
	"testing"
)

// TestSanitizeText_StripsTags はHTMLタグが除去されテキストだけが残ることを検証する。
func TestSanitizeText_StripsTags(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"段落と強調", "<p>朝の<strong>コーヒー</strong>習慣</p>", "朝のコーヒー習慣"},
		{"リンク", `<a href="https://example.com">定期便</a>`, "定期便"},
		{"前後の空白", "  \n アロマ \n ", "アロマ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeText_RemovesScriptContent はscriptタグが中身ごと除去されることを検証する。
func TestSanitizeText_RemovesScriptContent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	got := sanitizer.SanitizeText(`アイデア<script>alert("xss")</script><img src=x onerror=alert(1)>`)
	if strings.Contains(got, "alert") || strings.Contains(got, "<") {
		t.Errorf("SanitizeText = %q, should not contain script content or tags", got)
	}
	if got != "アイデア" {
		t.Errorf("SanitizeText = %q, want %q", got, "アイデア")
	}
}

// TestSanitizeText_PlainTextUnchanged は記号を含むプレーンテキストがそのまま通過することを検証する。
func TestSanitizeText_PlainTextUnchanged(t *testing.T) {
	sanitizer := NewTextSanitizer()

	inputs := []string{
		"커피 구독 서비스 & 아침 루틴",
		"Price < $10 \"per month\"",
		"line one\n\nline two",
	}
	for _, input := range inputs {
		if got := sanitizer.SanitizeText(input); got != input {
			t.Errorf("SanitizeText(%q) = %q, expected unchanged", input, got)
		}
	}
}

// TestSanitizeText_EmptyInput は空文字列の入力を安全に処理できることを検証する。
func TestSanitizeText_EmptyInput(t *testing.T) {
	if got := NewTextSanitizer().SanitizeText(""); got != "" {
		t.Errorf("SanitizeText(\"\") = %q, expected empty string", got)
	}
}

// TestTextSanitizerInterface はTextSanitizerServiceインターフェースの適合を検証する。
func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizerService = NewTextSanitizer()
}
