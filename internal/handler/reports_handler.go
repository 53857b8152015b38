package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/markboard/internal/export"
	"github.com/hitoshi/markboard/internal/model"
	"github.com/hitoshi/markboard/internal/workspace"
)

// RiskCount はリスク区分ごとの人数。
type RiskCount struct {
	Name  string
	Count int
}

// ReportsView はレポート画面の描画データ。
type ReportsView struct {
	Report *model.ReportSummary
	Filter model.ReportFilter
	Risks  []RiskCount
}

// ReportsHandler はレポート画面のHTTPハンドラー。
type ReportsHandler struct {
	render *Renderer
}

// NewReportsHandler はReportsHandlerを生成する。
func NewReportsHandler(render *Renderer) *ReportsHandler {
	return &ReportsHandler{render: render}
}

// Report は選択中のクラスと四半期のレポートを表示する。
// GET /reports
func (h *ReportsHandler) Report(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	report, f, err := ws.Report(r.Context())
	if err != nil {
		h.render.BackendError(w, r, ws, err, model.NewReportFailedError())
		return
	}

	view := ReportsView{Report: report, Filter: f, Risks: riskCounts(report.Totals.Risks)}
	h.render.Render(w, r, http.StatusOK, "reports", Page{Title: "Отчёты", Nav: "reports", Data: view})
}

// Download はバックエンドが生成したレポートファイルを中継する。
// ブラウザはバックエンドの認証情報を持たないため、ワークスペースのクライアントで取得して返す。
// GET /reports/download/{format}
func (h *ReportsHandler) Download(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	raw := chi.URLParam(r, "format")
	format, valid := export.ParseFormat(raw)
	if !valid {
		h.render.RenderError(w, r, http.StatusBadRequest, model.NewInvalidFormatError(raw))
		return
	}

	target := export.ReportURL(ws.Client, format, ws.Selectors.Get().ReportFilter())
	proxyDownload(h.render, w, r, ws, target, format, "report", model.NewReportFailedError())
}

// riskCounts はリスク区分を既知の順に並べ、未知の区分は名前順で後ろに付ける。
func riskCounts(risks map[string]int) []RiskCount {
	out := make([]RiskCount, 0, len(risks))
	seen := make(map[string]bool, len(risks))
	for _, risk := range model.Risks {
		name := string(risk)
		if n, ok := risks[name]; ok {
			out = append(out, RiskCount{Name: name, Count: n})
			seen[name] = true
		}
	}

	var rest []string
	for name := range risks {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, RiskCount{Name: name, Count: risks[name]})
	}
	return out
}

// proxyDownload はtargetのファイルを取得し、本文を読みながら返す。
func proxyDownload(rd *Renderer, w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, target string, format export.Format, base string, fallback *model.APIError) {
	body, err := ws.Client.Download(r.Context(), target, format.ContentType())
	if err != nil {
		rd.BackendError(w, r, ws, err, fallback)
		return
	}
	defer body.Close()

	filename := format.FileName(base)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"; filename*=UTF-8''`+url.PathEscape(filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		ws.Logger().Warn("failed to stream download", slog.String("error", err.Error()))
	}
}
