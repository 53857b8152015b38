package model

// ValidationReport はアップロードされたファイルに対するバックエンドの検証結果。
// 例外ではなく、画面に表示するデータとして扱う。
type ValidationReport struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// UploadResult は POST /api/upload のレスポンス。
type UploadResult struct {
	SessionID  string           `json:"session_id"`
	Stats      map[string]int   `json:"stats"`
	Validation ValidationReport `json:"validation"`
}

// SessionStatus は GET /api/session/status のレスポンス。
type SessionStatus struct {
	SessionID    string `json:"session_id"`
	ExpiresInSec int    `json:"expires_in_sec"`
}
