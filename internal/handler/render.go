package handler

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/markboard/internal/api"
	"github.com/hitoshi/markboard/internal/middleware"
	"github.com/hitoshi/markboard/internal/model"
	"github.com/hitoshi/markboard/internal/session"
	"github.com/hitoshi/markboard/internal/store"
	"github.com/hitoshi/markboard/internal/workspace"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages は描画できる画面の一覧。各画面はlayout.htmlと組み合わせて使う。
var pages = []string{
	"login", "dashboard", "students", "student", "reports",
	"labels", "upload", "settings", "error",
}

// NoSessionText はアップロードセッションがないときの表示。
const NoSessionText = "Нет активной сессии"

// Page は全画面で共通の描画データ。
type Page struct {
	Title     string
	Nav       string
	User      *model.AuthUser
	CSRFToken string
	CSRFField string
	Notices   []workspace.Notice
	Session   string
	Selectors store.Selectors
	Data      any
}

// Renderer はhtml/templateで画面を描画する。
type Renderer struct {
	templates map[string]*template.Template
	logger    *slog.Logger
}

// NewRenderer は埋め込みテンプレートを読み込んでRendererを生成する。
func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	funcs := template.FuncMap{
		"avg": func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
		"marks": func(vs []float64) string {
			parts := make([]string, len(vs))
			for i, v := range vs {
				parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
			}
			return strings.Join(parts, ", ")
		},
		"inc": func(i int) int { return i + 1 },
	}

	r := &Renderer{templates: make(map[string]*template.Template, len(pages)), logger: logger}
	for _, name := range pages {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render は画面を描画する。ワークスペースがあればユーザー・通知・セッション残り時間を埋め込む。
// 描画は一度バッファに書き出し、失敗した場合は内部エラーを返す。
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, p Page) {
	tmpl, ok := rd.templates[name]
	if !ok {
		rd.logger.Error("unknown template", slog.String("name", name))
		middleware.WriteInternalServerError(w)
		return
	}

	p.CSRFToken = middleware.CSRFTokenFromContext(r.Context())
	p.CSRFField = middleware.CSRFFieldName
	if ws, err := middleware.WorkspaceFromContext(r.Context()); err == nil {
		p.User = ws.Auth.User()
		p.Notices = ws.TakeNotices()
		p.Session = sessionText(ws)
		p.Selectors = ws.Selectors.Get()
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		rd.logger.Error("failed to render template",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// RenderError はエラー画面を描画する。
func (rd *Renderer) RenderError(w http.ResponseWriter, r *http.Request, status int, apiErr *model.APIError) {
	rd.Render(w, r, status, "error", Page{Title: apiErr.Message, Data: apiErr})
}

// BackendError はバックエンド呼び出しの失敗を処理する。
// 認証切れの場合はワークスペースの状態を破棄してログイン画面へ遷移させ、
// それ以外はfallbackのメッセージでエラー画面を描画する。
func (rd *Renderer) BackendError(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, err error, fallback *model.APIError) {
	if api.IsUnauthorized(err) {
		ws.MarkUnauthorized()
		http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
		return
	}

	ws.Logger().Warn("backend call failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	rd.RenderError(w, r, http.StatusBadGateway, fallback)
}

func sessionText(ws *workspace.Workspace) string {
	remaining, counting := ws.Countdown.Remaining()
	if !counting {
		return NoSessionText
	}
	return "Сессия: " + session.FormatRemaining(remaining)
}

// currentWorkspace はリクエストのワークスペースを返す。見つからない場合は内部エラーを書き込む。
func currentWorkspace(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	ws, err := middleware.WorkspaceFromContext(r.Context())
	if err != nil {
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return ws, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
