// Package filter はURLのクエリ文字列を唯一の保存先とする絞り込み状態を提供する。
// 書き込みはクエリ文字列の置き換えのみを行い、データの取得はしない。
// 一覧側はクエリ文字列から毎回キーを導出するため、URLの変更が再取得のきっかけになる。
package filter

import (
	"fmt"
	"net/url"
	"sync"
)

// Location はクエリ文字列の読み書き先。
type Location interface {
	// Query は現在のクエリパラメータのコピーを返す。
	Query() url.Values
	// Replace は履歴を積まずにクエリパラメータを置き換える。
	Replace(v url.Values)
}

// URLLocation はメモリ上に保持するLocationの実装。
// ワークスペースごとに1画面分のURLを表す。
type URLLocation struct {
	mu    sync.RWMutex
	path  string
	query url.Values
}

// NewURLLocation はURL文字列からURLLocationを生成する。
func NewURLLocation(rawURL string) (*URLLocation, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse location: %w", err)
	}
	return &URLLocation{
		path:  u.Path,
		query: u.Query(),
	}, nil
}

// Query はクエリパラメータのコピーを返す。
func (l *URLLocation) Query() url.Values {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneValues(l.query)
}

// Replace はクエリパラメータを置き換える。
func (l *URLLocation) Replace(v url.Values) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.query = cloneValues(v)
}

// Path はパス部分を返す。
func (l *URLLocation) Path() string {
	return l.path
}

// String はパスとクエリ文字列を連結したURLを返す。
func (l *URLLocation) String() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.query) == 0 {
		return l.path
	}
	return l.path + "?" + l.query.Encode()
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
