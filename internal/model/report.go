package model

import "net/url"

// ReportFilter はレポート取得の条件。
type ReportFilter struct {
	Class   string
	Quarter string
}

// Values は条件をクエリパラメータに変換する。空のフィールドは含めない。
func (f ReportFilter) Values() url.Values {
	v := url.Values{}
	if f.Class != "" {
		v.Set("class", f.Class)
	}
	if f.Quarter != "" {
		v.Set("quarter", f.Quarter)
	}
	return v
}

// ReportTotals はレポートの集計値。
type ReportTotals struct {
	Students int            `json:"students"`
	Risks    map[string]int `json:"risks"`
}

// SubjectAverage は科目別の平均点。
type SubjectAverage struct {
	Subject string  `json:"subject"`
	Average float64 `json:"average"`
}

// ReportSummary は GET /api/reports/current のレスポンス。
type ReportSummary struct {
	Totals    ReportTotals     `json:"totals"`
	BySubject []SubjectAverage `json:"bySubject"`
}

// LabelRequest は POST /api/labels/preview のリクエストボディ。
// 両方とも空の場合は全生徒が対象になる。
type LabelRequest struct {
	StudentIDs []string          `json:"studentIds,omitempty"`
	Filter     map[string]string `json:"filter,omitempty"`
}

// LabelPage はバックエンドが描画したラベルのページ。
type LabelPage struct {
	URL string `json:"url"`
}

// LabelPreview は POST /api/labels/preview のレスポンス。
type LabelPreview struct {
	Pages []LabelPage `json:"pages"`
}
