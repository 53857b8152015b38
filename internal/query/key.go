// Package query はキー単位でリクエストを重複排除しキャッシュするデータ取得層を提供する。
// 同じキーへの同時リクエストは1回の送信を共有し、結果は購読者がいる間保持される。
// 自動リトライは行わない。
package query

import (
	"net/url"
	"sort"
)

// Key はキャッシュされる取得結果を一意に識別する。
// Params は正規化済みのクエリ文字列で、空の値は含まない。
type Key struct {
	Endpoint string
	Params   string
}

// NewKey はエンドポイント名とパラメータからKeyを生成する。
// パラメータはキー名と値の順で並べ替え、空の値は取り除く。
func NewKey(endpoint string, params url.Values) Key {
	normalized := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				normalized.Add(k, v)
			}
		}
	}
	for k := range normalized {
		sort.Strings(normalized[k])
	}
	return Key{Endpoint: endpoint, Params: normalized.Encode()}
}

// String はログ・表示用の文字列表現を返す。
func (k Key) String() string {
	if k.Params == "" {
		return k.Endpoint
	}
	return k.Endpoint + "?" + k.Params
}
