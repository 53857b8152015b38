package handler

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/markboard/internal/api"
	"github.com/hitoshi/markboard/internal/chart"
	"github.com/hitoshi/markboard/internal/export"
	"github.com/hitoshi/markboard/internal/filter"
	"github.com/hitoshi/markboard/internal/middleware"
	"github.com/hitoshi/markboard/internal/model"
	"github.com/hitoshi/markboard/internal/query"
	"github.com/hitoshi/markboard/internal/virtual"
	"github.com/hitoshi/markboard/internal/workspace"
)

// 生徒カードの推移グラフのサイズ。
const (
	trendWidth  = 600
	trendHeight = 280
)

// 生徒カードのタブ。
const (
	tabPerformance = "performance"
	tabAttendance  = "attendance"
	tabTrend       = "trend"
	tabLabel       = "label"
)

var cardTabs = []struct{ key, label string }{
	{tabPerformance, "Успеваемость"},
	{tabAttendance, "Посещаемость"},
	{tabTrend, "Динамика"},
	{tabLabel, "Этикетка"},
}

// TableConfig は生徒一覧の仮想化表の設定。
type TableConfig struct {
	RowHeight      int
	ViewportHeight int
	Overscan       int
}

// Link は画面上のリンク。
type Link struct {
	Label    string
	Href     string
	Selected bool
}

// HiddenField はフォームの隠しフィールド。
type HiddenField struct {
	Name  string
	Value string
}

// StudentsView は生徒一覧画面の描画データ。
type StudentsView struct {
	Query          string
	Hidden         []HiddenField
	Classes        []Link
	Risks          []Link
	Chips          []Link
	Error          *model.APIError
	Table          virtual.Rendered
	Total          int
	Offset         int
	ViewportHeight int
	PrevHref       string
	NextHref       string
	ExportHref     string
}

// StudentView は生徒カード画面の描画データ。
type StudentView struct {
	Student    *model.StudentDetail
	Tab        string
	Tabs       []Link
	LabelURL   string
	LabelError string
}

// searchResponse は検索入力エンドポイントのレスポンス。
type searchResponse struct {
	Draft    string `json:"draft"`
	Pending  bool   `json:"pending"`
	Query    string `json:"q"`
	Location string `json:"location"`
}

// StudentsHandler は生徒一覧と生徒カードのHTTPハンドラー。
type StudentsHandler struct {
	render *Renderer
	table  virtual.Table[model.Student]
}

// NewStudentsHandler はStudentsHandlerを生成する。
func NewStudentsHandler(render *Renderer, cfg TableConfig) *StudentsHandler {
	return &StudentsHandler{
		render: render,
		table: virtual.Table[model.Student]{
			Columns: []virtual.Column[model.Student]{
				{
					Header:   "ФИО",
					Accessor: func(s model.Student) string { return s.FullName },
					Link:     func(s model.Student) string { return workspace.StudentsPath + "/" + url.PathEscape(s.ID) },
				},
				{Header: "Класс", Accessor: func(s model.Student) string { return s.Class }},
				{Header: "Средний балл", Accessor: func(s model.Student) string { return strconv.FormatFloat(s.Average, 'f', 2, 64) }},
				{Header: "Риск", Accessor: func(s model.Student) string { return string(s.Risk) }},
			},
			RowKey:         func(s model.Student) string { return s.ID },
			RowHeight:      cfg.RowHeight,
			ViewportHeight: cfg.ViewportHeight,
			Overscan:       cfg.Overscan,
		},
	}
}

// List は生徒一覧を表示する。絞り込み条件はURLのクエリから読み取る。
// GET /students?class=&risk=&q=&offset=
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	current := filterValues(r.URL.Query())
	ws.Location.Replace(current)
	state := ws.LoadStudentsFor(r.Context(), filter.FromValues(current))
	if api.IsUnauthorized(state.Err) {
		ws.MarkUnauthorized()
		http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	view := h.listView(current, state, offset)

	status := http.StatusOK
	if state.Err != nil {
		ws.Logger().Warn("failed to load students", slog.String("error", state.Err.Error()))
		view.Error = model.NewLoadFailedError()
		status = http.StatusBadGateway
	}
	h.render.Render(w, r, status, "students", Page{Title: "Ученики", Nav: "students", Data: view})
}

// ExportCSV は絞り込み条件の生徒一覧をCSVで返す。
// 一覧で読み込み済みの行を書き出し、未取得の場合だけバックエンドから取得する。
// GET /students/export.csv
func (h *StudentsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	list, err := ws.LoadedStudents(r.Context(), filter.FromValues(filterValues(r.URL.Query())))
	if err != nil {
		h.render.BackendError(w, r, ws, err, model.NewLoadFailedError())
		return
	}
	if list == nil || len(list.Items) == 0 {
		h.render.RenderError(w, r, http.StatusConflict, model.NewNothingToExportError())
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", export.ContentDisposition())
	w.WriteHeader(http.StatusOK)
	if err := export.WriteStudentsCSV(w, list.Items); err != nil {
		ws.Logger().Error("failed to write csv", slog.String("error", err.Error()))
	}
}

// Search は検索欄の入力を受け取る。入力は一定時間止まった後に絞り込み条件へ反映される。
// POST /students/search
func (h *StudentsHandler) Search(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	ws.Search.Change(r.PostFormValue(filter.FieldQuery))
	writeJSON(w, http.StatusAccepted, searchResponse{
		Draft:    ws.Search.Draft(),
		Pending:  ws.Search.Pending(),
		Query:    ws.Filters.Get(filter.FieldQuery),
		Location: ws.Location.String(),
	})
}

// SearchState は反映済みの検索条件と一覧のURLを返す。
// GET /students/search
func (h *StudentsHandler) SearchState(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Draft:    ws.Search.Draft(),
		Pending:  ws.Search.Pending(),
		Query:    ws.Filters.Get(filter.FieldQuery),
		Location: ws.Location.String(),
	})
}

// Card は生徒カードを表示する。
// GET /students/{id}?tab=
func (h *StudentsHandler) Card(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	h.renderCard(w, r, ws, chi.URLParam(r, "id"), r.URL.Query().Get("tab"), "", "")
}

// Label は生徒1人分のラベルのプレビューを生成し、ラベルタブを表示する。
// POST /students/{id}/label
func (h *StudentsHandler) Label(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var labelURL, labelErr string
	preview, err := ws.Client.LabelPreview(r.Context(), model.LabelRequest{StudentIDs: []string{id}})
	switch {
	case api.IsUnauthorized(err):
		ws.MarkUnauthorized()
		http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
		return
	case err != nil:
		ws.Logger().Warn("failed to build label preview",
			slog.String("student_id", id),
			slog.String("error", err.Error()),
		)
		labelErr = model.NewLabelFailedError().Message
	case len(preview.Pages) > 0:
		labelURL = ws.Client.ResolveURL(preview.Pages[0].URL)
	}

	h.renderCard(w, r, ws, id, tabLabel, labelURL, labelErr)
}

// Trend は成績推移のグラフをPNGで返す。
// GET /students/{id}/trend.png
func (h *StudentsHandler) Trend(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	detail, err := ws.Student(r.Context(), id)
	if err != nil {
		if api.IsUnauthorized(err) {
			ws.MarkUnauthorized()
		}
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewLoadFailedError())
		return
	}

	points := make([]chart.Point, len(detail.Trend))
	for i, p := range detail.Trend {
		points[i] = chart.Point{Label: p.Date, Value: p.Average}
	}

	var buf bytes.Buffer
	if err := chart.RenderTrend(&buf, points, trendWidth, trendHeight); err != nil {
		if errors.Is(err, chart.ErrNoData) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewStudentNotFoundError(id))
			return
		}
		ws.Logger().Error("failed to render trend", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func (h *StudentsHandler) renderCard(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, id, tab, labelURL, labelErr string) {
	detail, err := ws.Student(r.Context(), id)
	if err != nil {
		if api.StatusCode(err) == http.StatusNotFound {
			h.render.RenderError(w, r, http.StatusNotFound, model.NewStudentNotFoundError(id))
			return
		}
		h.render.BackendError(w, r, ws, err, model.NewLoadFailedError())
		return
	}

	if !validTab(tab) {
		tab = tabPerformance
	}
	tabs := make([]Link, len(cardTabs))
	for i, t := range cardTabs {
		tabs[i] = Link{
			Label:    t.label,
			Href:     workspace.StudentsPath + "/" + url.PathEscape(id) + "?tab=" + t.key,
			Selected: t.key == tab,
		}
	}

	view := StudentView{Student: detail, Tab: tab, Tabs: tabs, LabelURL: labelURL, LabelError: labelErr}
	h.render.Render(w, r, http.StatusOK, "student", Page{Title: detail.FullName, Nav: "students", Data: view})
}

func (h *StudentsHandler) listView(current url.Values, state query.ViewState[*model.StudentList], offset int) StudentsView {
	f := filter.FromValues(current)

	view := StudentsView{
		Query:          f.Query,
		Offset:         offset,
		ViewportHeight: h.table.ViewportHeight,
		ExportHref:     withValues("/students/export.csv", current),
	}
	if f.Class != "" {
		view.Hidden = append(view.Hidden, HiddenField{Name: filter.FieldClass, Value: f.Class})
	}
	if f.Risk != "" {
		view.Hidden = append(view.Hidden, HiddenField{Name: filter.FieldRisk, Value: f.Risk})
	}

	for _, c := range model.Classes {
		view.Classes = append(view.Classes, Link{Label: c, Href: toggledHref(current, filter.FieldClass, c), Selected: f.Class == c})
	}
	for _, risk := range model.Risks {
		v := string(risk)
		view.Risks = append(view.Risks, Link{Label: v, Href: toggledHref(current, filter.FieldRisk, v), Selected: f.Risk == v})
	}
	for _, chip := range filter.ChipsFor(f) {
		view.Chips = append(view.Chips, Link{Label: chip.Label, Href: toggledHref(current, chip.Key, current.Get(chip.Key)), Selected: true})
	}

	var rows []model.Student
	if state.Data != nil {
		rows = state.Data.Items
		view.Total = state.Data.Total
		if view.Total == 0 {
			view.Total = len(rows)
		}
	}
	view.Table = h.table.Render(rows, offset)

	if offset > 0 {
		prev := max(offset-h.table.ViewportHeight, 0)
		view.PrevHref = pageHref(current, prev)
	}
	if next := offset + h.table.ViewportHeight; h.table.ViewportHeight > 0 && next < view.Table.TotalHeight {
		view.NextHref = pageHref(current, next)
	}
	return view
}

// filterValues はクエリから絞り込みに使うキーだけを取り出す。
func filterValues(q url.Values) url.Values {
	out := url.Values{}
	for _, field := range []string{filter.FieldClass, filter.FieldRisk, filter.FieldQuery} {
		if v := q.Get(field); v != "" {
			out.Set(field, v)
		}
	}
	return out
}

// toggledHref は field の値を切り替えた後の一覧URLを返す。
func toggledHref(current url.Values, field, value string) string {
	loc, err := filter.NewURLLocation(workspace.StudentsPath)
	if err != nil {
		return workspace.StudentsPath
	}
	loc.Replace(current)
	filter.NewState(loc).Toggle(field, value)
	return loc.String()
}

func pageHref(current url.Values, offset int) string {
	v := url.Values{}
	for k, vs := range current {
		v[k] = vs
	}
	if offset > 0 {
		v.Set("offset", strconv.Itoa(offset))
	}
	return withValues(workspace.StudentsPath, v)
}

func withValues(path string, v url.Values) string {
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}

func validTab(tab string) bool {
	for _, t := range cardTabs {
		if t.key == tab {
			return true
		}
	}
	return false
}
