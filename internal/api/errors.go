package api

import (
	"errors"
	"fmt"
)

// Kind はバックエンド呼び出しの失敗分類。
type Kind int

const (
	// KindTransport はネットワーク・通信レベルの失敗。
	KindTransport Kind = iota
	// KindStatus は2xx以外のHTTPステータス。
	KindStatus
	// KindUnauthorized は401。セッションがアプリ全体で無効になったことを示す。
	KindUnauthorized
)

// String はKindの文字列表現を返す。
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// ErrUnauthorized はerrors.Isで401エラーを判定するための番兵。
var ErrUnauthorized = errors.New("unauthorized")

// Error はバックエンド呼び出しの統一エラー。
type Error struct {
	Kind       Kind
	StatusCode int    // KindTransportの場合は0
	Message    string // レスポンス本文（プレーンテキスト）またはステータステキスト
	Err        error  // 元のエラー（KindTransportの場合）
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("backend %s error (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %s error: %s", e.Kind, e.Message)
}

// Unwrap は元のエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// Is はKindUnauthorizedのエラーをErrUnauthorizedと一致させる。
func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.Kind == KindUnauthorized
}

// IsUnauthorized はエラーチェーンに401エラーが含まれるかを返す。
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// StatusCode はエラーチェーン中の*ErrorのHTTPステータスを返す。見つからない場合は0。
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Message はエラーチェーン中の*Errorのメッセージを返す。見つからない場合は空文字列。
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
