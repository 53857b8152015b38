package export

import (
	"net/url"

	"github.com/hitoshi/markboard/internal/model"
)

// Format はバックエンドが生成するレポートの形式。
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// ParseFormat は文字列をFormatに変換する。未知の形式の場合はfalseを返す。
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatPDF, FormatXLSX:
		return Format(s), true
	default:
		return "", false
	}
}

// URLResolver は相対パスをバックエンドのURLに解決する。
type URLResolver interface {
	ResolveURL(path string) string
}

// ReportURL は現在のレポートのダウンロードURLを返す。
// クエリはレポート画面と同じ条件（クラス・四半期）。空の条件は含めない。
func ReportURL(r URLResolver, format Format, f model.ReportFilter) string {
	path := "/api/reports/current." + string(format)
	if v := f.Values(); len(v) > 0 {
		path += "?" + v.Encode()
	}
	return r.ResolveURL(path)
}

// LabelsURL はラベルPDFのダウンロードURLを返す。
func LabelsURL(r URLResolver, params url.Values) string {
	return r.ResolveURL("/api/labels/pdf?" + params.Encode())
}

// ContentType は形式に対応するContent-Typeを返す。
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// FileName はダウンロード時のファイル名を返す。
func (f Format) FileName(base string) string {
	return base + "." + string(f)
}
