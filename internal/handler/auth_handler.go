// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"net/http"

	"github.com/hitoshi/markboard/internal/api"
	"github.com/hitoshi/markboard/internal/auth"
	"github.com/hitoshi/markboard/internal/middleware"
	"github.com/hitoshi/markboard/internal/workspace"
)

const (
	modeLogin    = "login"
	modeRegister = "register"
)

// LoginView はログイン・登録画面の描画データ。
type LoginView struct {
	Mode   string
	Email  string
	Fields *auth.ValidationError
	Error  string
}

// AuthHandler はログイン・登録・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	render *Renderer
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(render *Renderer) *AuthHandler {
	return &AuthHandler{render: render}
}

// LoginPage はログイン画面を表示する。ログイン済みの場合はトップへ遷移する。
// GET /login?mode=register
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	if ws.Auth.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	mode := modeLogin
	if r.URL.Query().Get("mode") == modeRegister {
		mode = modeRegister
	}
	h.renderForm(w, r, http.StatusOK, LoginView{Mode: mode})
}

// Login はログインする。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	creds := credentialsFromForm(r)
	if err := ws.Accounts.Login(r.Context(), creds); err != nil {
		h.renderFailure(w, r, modeLogin, creds, err, auth.LoginErrorMessage)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Register はユーザーを登録し、ログイン画面へ戻す。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	creds := credentialsFromForm(r)
	if err := ws.Accounts.Register(r.Context(), creds); err != nil {
		h.renderFailure(w, r, modeRegister, creds, err, auth.RegisterErrorMessage)
		return
	}

	ws.PushNotice(workspace.Notice{Title: auth.MsgRegistered})
	http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
}

// Logout はログアウトし、ログイン画面へ戻す。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	ws.Accounts.Logout(r.Context())
	http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
}

func (h *AuthHandler) renderFailure(w http.ResponseWriter, r *http.Request, mode string, creds auth.Credentials, err error, message func(error) string) {
	view := LoginView{Mode: mode, Email: creds.Email}
	if verr, ok := auth.AsValidationError(err); ok {
		view.Fields = verr
		h.renderForm(w, r, http.StatusUnprocessableEntity, view)
		return
	}

	view.Error = message(err)
	status := http.StatusBadGateway
	if code := api.StatusCode(err); code >= 400 && code < 500 {
		status = code
	}
	h.renderForm(w, r, status, view)
}

func (h *AuthHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, view LoginView) {
	title := "Вход"
	if view.Mode == modeRegister {
		title = "Регистрация"
	}
	h.render.Render(w, r, status, "login", Page{Title: title, Nav: "login", Data: view})
}

func credentialsFromForm(r *http.Request) auth.Credentials {
	return auth.Credentials{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
}
