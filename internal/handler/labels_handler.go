package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/hitoshi/markboard/internal/api"
	"github.com/hitoshi/markboard/internal/export"
	"github.com/hitoshi/markboard/internal/middleware"
	"github.com/hitoshi/markboard/internal/model"
	"github.com/hitoshi/markboard/internal/workspace"
)

// ラベルの対象範囲。
const (
	labelModeAll      = "all"
	labelModeSelected = "selected"
	labelModeFiltered = "filtered"
)

// LabelStudent はラベル画面の生徒選択欄の1行。
type LabelStudent struct {
	model.Student
	Selected bool
}

// LabelsView はラベル画面の描画データ。
type LabelsView struct {
	Mode     string
	Students []LabelStudent
	Pages    []model.LabelPage
	Error    string
}

// LabelsHandler はラベル画面のHTTPハンドラー。
type LabelsHandler struct {
	render *Renderer
}

// NewLabelsHandler はLabelsHandlerを生成する。
func NewLabelsHandler(render *Renderer) *LabelsHandler {
	return &LabelsHandler{render: render}
}

// Labels はラベル画面を表示する。
// GET /labels?mode=
func (h *LabelsHandler) Labels(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	h.renderLabels(w, r, ws, http.StatusOK, LabelsView{Mode: labelMode(r.URL.Query().Get("mode"))}, nil)
}

// Preview はラベルのプレビューを生成する。
// 全員の場合は条件なし、選択の場合は生徒ID、クラスの場合は選択中のクラスで絞り込む。
// POST /labels/preview
func (h *LabelsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.render.RenderError(w, r, http.StatusBadRequest, model.NewLabelFailedError())
		return
	}

	view := LabelsView{Mode: labelMode(r.PostForm.Get("mode"))}
	selected := r.PostForm["student_id"]

	req := model.LabelRequest{}
	switch view.Mode {
	case labelModeSelected:
		req.StudentIDs = selected
	case labelModeFiltered:
		req.Filter = map[string]string{"class": ws.Selectors.Get().Classroom}
	}

	preview, err := ws.Client.LabelPreview(r.Context(), req)
	status := http.StatusOK
	switch {
	case api.IsUnauthorized(err):
		ws.MarkUnauthorized()
		http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
		return
	case err != nil:
		ws.Logger().Warn("failed to build label preview",
			slog.String("mode", view.Mode),
			slog.String("error", err.Error()),
		)
		view.Error = model.NewLabelFailedError().Message
		status = http.StatusBadGateway
	default:
		for _, p := range preview.Pages {
			view.Pages = append(view.Pages, model.LabelPage{URL: ws.Client.ResolveURL(p.URL)})
		}
	}

	h.renderLabels(w, r, ws, status, view, selected)
}

// PDF は選択中のクラスのラベルPDFを中継する。
// GET /labels/pdf
func (h *LabelsHandler) PDF(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	target := export.LabelsURL(ws.Client, url.Values{"class": {ws.Selectors.Get().Classroom}})
	proxyDownload(h.render, w, r, ws, target, export.FormatPDF, "labels", model.NewLabelFailedError())
}

// renderLabels は選択モードの場合のみ生徒一覧を読み込んで描画する。
func (h *LabelsHandler) renderLabels(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, status int, view LabelsView, selected []string) {
	if view.Mode == labelModeSelected {
		list, err := ws.AllStudents(r.Context())
		if err != nil {
			h.render.BackendError(w, r, ws, err, model.NewLoadFailedError())
			return
		}
		for _, s := range list.Items {
			view.Students = append(view.Students, LabelStudent{Student: s, Selected: slices.Contains(selected, s.ID)})
		}
	}
	h.render.Render(w, r, status, "labels", Page{Title: "Этикетки", Nav: "labels", Data: view})
}

func labelMode(v string) string {
	switch v {
	case labelModeSelected, labelModeFiltered:
		return v
	default:
		return labelModeAll
	}
}
