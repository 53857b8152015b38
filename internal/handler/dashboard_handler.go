package handler

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/hitoshi/markboard/internal/store"
)

// 設定画面の選択肢。
var (
	schoolOptions    = []string{"School #1", "School #2"}
	classroomOptions = []string{"7A", "7B", "8A"}
	quarterOptions   = []string{"1", "2", "3", "4"}
)

// Option はセレクトボックスの選択肢。
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// SelectField は設定画面のセレクトボックス。
type SelectField struct {
	Name    string
	Label   string
	Options []Option
}

// SettingsView は設定画面の描画データ。
type SettingsView struct {
	SessionID string
	Fields    []SelectField
}

// DashboardHandler はトップ画面と設定画面のHTTPハンドラー。
type DashboardHandler struct {
	render *Renderer
	now    func() time.Time
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(render *Renderer) *DashboardHandler {
	return &DashboardHandler{render: render, now: time.Now}
}

// Dashboard はトップ画面を表示する。
// GET /
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, http.StatusOK, "dashboard", Page{Title: "Главная", Nav: "dashboard"})
}

// Settings は選択状態の設定画面を表示する。
// GET /settings
func (h *DashboardHandler) Settings(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	view := SettingsView{
		SessionID: ws.Sessions.Get().SessionID,
		Fields:    settingsFields(ws.Selectors.Get(), h.yearOptions()),
	}
	h.render.Render(w, r, http.StatusOK, "settings", Page{Title: "Настройки", Nav: "settings", Data: view})
}

// UpdateSettings は選択状態を更新する。選択肢にない値は無視する。
// POST /settings
func (h *DashboardHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	if v := r.PostFormValue("school"); slices.Contains(schoolOptions, v) {
		ws.Selectors.SetSchool(v)
	}
	if v := r.PostFormValue("year"); slices.Contains(h.yearOptions(), v) {
		ws.Selectors.SetYear(v)
	}
	if v := r.PostFormValue("classroom"); slices.Contains(classroomOptions, v) {
		ws.Selectors.SetClassroom(v)
	}
	if v := r.PostFormValue("quarter"); slices.Contains(quarterOptions, v) {
		ws.Selectors.SetQuarter(v)
	}

	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}

// yearOptions は今年と前年を返す。
func (h *DashboardHandler) yearOptions() []string {
	year := h.now().Year()
	return []string{strconv.Itoa(year), strconv.Itoa(year - 1)}
}

func settingsFields(s store.Selectors, years []string) []SelectField {
	return []SelectField{
		{Name: "school", Label: "Школа", Options: options(schoolOptions, s.School, nil)},
		{Name: "year", Label: "Учебный год", Options: options(years, s.Year, nil)},
		{Name: "classroom", Label: "Класс", Options: options(classroomOptions, s.Classroom, nil)},
		{Name: "quarter", Label: "Четверть", Options: options(quarterOptions, s.Quarter, func(v string) string { return v + " четверть" })},
	}
}

func options(values []string, selected string, label func(string) string) []Option {
	out := make([]Option, len(values))
	for i, v := range values {
		text := v
		if label != nil {
			text = label(v)
		}
		out[i] = Option{Value: v, Label: text, Selected: v == selected}
	}
	return out
}
