// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はサインアップフォームから受け取った自由入力（氏名）を
// プレーンテキストに正規化し、保存されたプロフィールを経由するXSSを防ぐ。
// bluemondayのStrictPolicyで全てのタグを除去する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxNameLength は氏名フィールドの最大文字数（rune数）。
const DefaultMaxNameLength = 50

// TextSanitizerService はプレーンテキスト正規化のインターフェースを定義する。
type TextSanitizerService interface {
	// SanitizeName は氏名をプレーンテキストに正規化する。
	// HTMLタグを除去し（script/styleは内容ごと除去）、連続する空白を1つにまとめ、
	// 前後の空白を取り除き、最大文字数で切り詰める。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeName(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
type textSanitizer struct {
	policy    *bluemonday.Policy
	maxLength int
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// maxLengthが0以下の場合はDefaultMaxNameLengthを使用する。
func NewTextSanitizer(maxLength int) *textSanitizer {
	if maxLength <= 0 {
		maxLength = DefaultMaxNameLength
	}
	return &textSanitizer{
		policy:    bluemonday.StrictPolicy(),
		maxLength: maxLength,
	}
}

// SanitizeName は氏名をプレーンテキストに正規化する。
func (s *textSanitizer) SanitizeName(raw string) string {
	// StrictPolicyは出力をHTMLエスケープするため、保存前に戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > s.maxLength {
		text = strings.TrimSpace(string([]rune(text)[:s.maxLength]))
	}

	return text
}
