package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/markboard/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Workspaces  middleware.WorkspaceStore
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger

	// Cookie
	CookieSecure bool

	// ラベル画像などを直接読み込むバックエンドのオリジン
	BackendOrigin string

	// 画面
	Renderer *Renderer
	Table    TableConfig

	// /metrics（nilの場合は公開しない）
	Metrics http.Handler
}

// NewRouter は全画面のルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Workspace → Logging → CSRF → RequireAuth → RateLimit(General)
//
// /health と /metrics はワークスペースを作らないようチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	if deps.BackendOrigin != "" {
		r.Use(middleware.NewSecurityHeadersMiddleware(deps.BackendOrigin))
	} else {
		r.Use(middleware.NewSecurityHeadersMiddleware())
	}

	r.Get("/health", Health)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	authHandler := NewAuthHandler(deps.Renderer)
	dashboardHandler := NewDashboardHandler(deps.Renderer)
	studentsHandler := NewStudentsHandler(deps.Renderer, deps.Table)
	reportsHandler := NewReportsHandler(deps.Renderer)
	labelsHandler := NewLabelsHandler(deps.Renderer)
	uploadHandler := NewUploadHandler(deps.Renderer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewWorkspaceMiddleware(deps.Workspaces, middleware.WorkspaceConfig{CookieSecure: deps.CookieSecure}))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
		r.Use(middleware.NewCSRFMiddleware(middleware.CSRFConfig{CookieSecure: deps.CookieSecure}))

		// --- 認証不要のルート ---
		r.Get(middleware.LoginPath, authHandler.LoginPage)
		r.Post(middleware.LoginPath, authHandler.Login)
		r.Post("/register", authHandler.Register)
		r.Post("/logout", authHandler.Logout)

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: RequireAuth → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireAuthMiddleware())
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/", dashboardHandler.Dashboard)
			r.Get("/settings", dashboardHandler.Settings)
			r.Post("/settings", dashboardHandler.UpdateSettings)

			// 生徒
			r.Route("/students", func(r chi.Router) {
				r.Get("/", studentsHandler.List)
				r.Get("/export.csv", studentsHandler.ExportCSV)
				r.Get("/search", studentsHandler.SearchState)
				r.Post("/search", studentsHandler.Search)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", studentsHandler.Card)
					r.Get("/trend.png", studentsHandler.Trend)
					r.Post("/label", studentsHandler.Label)
				})
			})

			// レポート
			r.Get("/reports", reportsHandler.Report)
			r.Get("/reports/download/{format}", reportsHandler.Download)

			// ラベル
			r.Get("/labels", labelsHandler.Labels)
			r.Post("/labels/preview", labelsHandler.Preview)
			r.Get("/labels/pdf", labelsHandler.PDF)

			// アップロード（アップロード専用レート制限を追加）
			r.Get("/upload", uploadHandler.Page)
			r.With(deps.RateLimiter.UploadMiddleware()).Post("/upload", uploadHandler.Upload)
			r.Post("/upload/clear", uploadHandler.Clear)
		})
	})

	return r
}
