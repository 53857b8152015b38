package middleware

import "net/http"

// LoginPath はログイン画面のパス。
const LoginPath = "/login"

// NewRequireAuthMiddleware は保護ページの表示前にログイン状態を確認するミドルウェアを返す。
// 未ログインの場合は内容を描画せずにログイン画面へリダイレクトする。
// ワークスペースミドルウェアの後に配置する。
func NewRequireAuthMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ws, err := WorkspaceFromContext(r.Context())
			if err != nil {
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}

			if !ws.Bootstrap(r.Context()) {
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
