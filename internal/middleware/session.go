// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/markboard/internal/workspace"
)

const workspaceCookieName = "markboard_ws"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// workspaceContextKey はリクエストコンテキストにワークスペースを格納するためのキー。
var workspaceContextKey = contextKey("workspace")

// WorkspaceStore はワークスペースの検索と生成に必要なインターフェース。
// *workspace.Registry が満たす。
type WorkspaceStore interface {
	Get(id string) (*workspace.Workspace, bool)
	Create() (*workspace.Workspace, error)
}

// WorkspaceConfig はワークスペースCookieの設定。
type WorkspaceConfig struct {
	CookieSecure bool
}

// NewWorkspaceMiddleware はHTTP Only Cookieからワークスペースを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない、または対応するワークスペースが破棄済みの場合は新しく作成する。
func NewWorkspaceMiddleware(store WorkspaceStore, config WorkspaceConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ws *workspace.Workspace
			if cookie, err := r.Cookie(workspaceCookieName); err == nil && cookie.Value != "" {
				ws, _ = store.Get(cookie.Value)
			}

			if ws == nil {
				created, err := store.Create()
				if err != nil {
					slog.Error("failed to create workspace",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				ws = created
				http.SetCookie(w, &http.Cookie{
					Name:     workspaceCookieName,
					Value:    ws.ID,
					Path:     "/",
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := ContextWithWorkspace(r.Context(), ws)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WorkspaceFromContext はリクエストコンテキストからワークスペースを取得する。
// ワークスペースミドルウェアを通過したリクエストでのみ有効。
func WorkspaceFromContext(ctx context.Context) (*workspace.Workspace, error) {
	ws, ok := ctx.Value(workspaceContextKey).(*workspace.Workspace)
	if !ok || ws == nil {
		return nil, fmt.Errorf("workspace not found in context")
	}
	return ws, nil
}

// WorkspaceIDFromContext はリクエストコンテキストからワークスペースIDを取得する。
func WorkspaceIDFromContext(ctx context.Context) (string, error) {
	ws, err := WorkspaceFromContext(ctx)
	if err != nil {
		return "", err
	}
	return ws.ID, nil
}

// ContextWithWorkspace はコンテキストにワークスペースを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithWorkspace(ctx context.Context, ws *workspace.Workspace) context.Context {
	return context.WithValue(ctx, workspaceContextKey, ws)
}
