// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はバックエンドから受け取った自由記述テキスト（エラーレスポンスの本文、
// アップロード検証メッセージ等）からHTMLを除去し、プレーンテキストに変換する。
// bluemondayのStrictPolicyを使用し、タグを一切通過させない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxTextLength はプレーンテキスト化した結果の最大文字数（rune単位）。
// プロキシが返す巨大なHTMLエラーページを画面にそのまま出さないための上限。
const maxTextLength = 500

// TextSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizerService interface {
	// PlainText はHTMLを含みうる文字列からタグを除去し、
	// HTMLエンティティを復元し、連続する空白を1つにまとめたテキストを返す。
	// 空文字列の入力には空文字列を返す。
	PlainText(raw string) string
}

// TextSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなので共有して使う。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *TextSanitizer {
	p := bluemonday.StrictPolicy()
	// ブロック要素を除去したときに前後の単語が連結しないよう空白を挟む
	p.AddSpaceWhenStrippingTag(true)

	return &TextSanitizer{
		policy: p,
	}
}

// PlainText はHTMLタグを除去したプレーンテキストを返す。
// script/styleの中身はbluemondayによって破棄される。
func (s *TextSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}

	stripped := s.policy.Sanitize(raw)
	// StrictPolicyはテキストをエスケープして返すため元に戻す
	text := html.UnescapeString(stripped)
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) > maxTextLength {
		text = string(runes[:maxTextLength]) + "…"
	}
	return text
}

// PlainTexts はスライスの各要素にPlainTextを適用する。空になった要素は取り除く。
func (s *TextSanitizer) PlainTexts(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if t := s.PlainText(r); t != "" {
			out = append(out, t)
		}
	}
	return out
}
