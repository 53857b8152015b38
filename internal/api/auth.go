package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/markboard/internal/model"
)

// LoginRequest はログインの入力値。
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest はユーザー登録の入力値。
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse はフォーム形式ログインのレスポンス。
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// okResponse は {ok:true} 形式のレスポンス。
type okResponse struct {
	OK bool `json:"ok"`
}

// authPath は認証系エンドポイントのパスを返す。
func (c *Client) authPath(name string) string {
	return c.authPrefix + "/" + name
}

// Login は設定されたエンコーディングでログインする。
// フォーム形式の場合、返却されたアクセストークンを有効期限までBearerヘッダーとして送信する。
func (c *Client) Login(ctx context.Context, req LoginRequest) error {
	if c.loginEncoding == LoginEncodingJSON {
		return c.LoginJSON(ctx, req)
	}

	form := url.Values{}
	form.Set("username", req.Email)
	form.Set("password", req.Password)

	var resp TokenResponse
	err := c.do(ctx, request{
		endpoint:    "auth.login",
		method:      http.MethodPost,
		path:        c.authPath("login"),
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &resp)
	if err != nil {
		return err
	}

	c.setToken(resp.AccessToken)
	return nil
}

// LoginJSON はJSON形式でログインする。セッションはCookieのみで維持される。
func (c *Client) LoginJSON(ctx context.Context, req LoginRequest) error {
	body, err := jsonBody(req)
	if err != nil {
		return err
	}

	var resp okResponse
	return c.do(ctx, request{
		endpoint:    "auth.login",
		method:      http.MethodPost,
		path:        c.authPath("login"),
		body:        body,
		contentType: "application/json",
	}, &resp)
}

// Register は新しいユーザーを登録する。登録だけではログイン状態にならない。
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*model.AuthUser, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}

	var user model.AuthUser
	err = c.do(ctx, request{
		endpoint:    "auth.register",
		method:      http.MethodPost,
		path:        c.authPath("register"),
		body:        body,
		contentType: "application/json",
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Me は現在ログイン中のユーザーを取得する。
func (c *Client) Me(ctx context.Context) (*model.AuthUser, error) {
	var user model.AuthUser
	err := c.do(ctx, request{
		endpoint: "auth.me",
		method:   http.MethodGet,
		path:     c.authPath("me"),
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout はログアウトする。バックエンドの結果にかかわらずローカルのトークンは破棄する。
func (c *Client) Logout(ctx context.Context) error {
	c.clearToken()
	return c.do(ctx, request{
		endpoint: "auth.logout",
		method:   http.MethodPost,
		path:     c.authPath("logout"),
	}, nil)
}

// TokenSubject は保持中のアクセストークンのsubクレームを返す。トークンがない場合は空文字列。
func (c *Client) TokenSubject() string {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return ""
	}

	claims, err := parseClaims(token)
	if err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

// setToken はアクセストークンを保持する。
// 署名はバックエンドが検証するため、ここではexpの読み取りのみ行う。
func (c *Client) setToken(token string) {
	if token == "" {
		return
	}

	var exp time.Time
	claims, err := parseClaims(token)
	if err != nil {
		c.logger.Warn("failed to parse access token claims", "error", err)
	} else if e, _ := claims.GetExpirationTime(); e != nil {
		exp = e.Time
	}

	c.mu.Lock()
	c.token = token
	c.tokenExp = exp
	c.mu.Unlock()
}

// clearToken は保持中のアクセストークンを破棄する。
func (c *Client) clearToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExp = time.Time{}
	c.mu.Unlock()
}

// bearerToken は有効期限内のトークンを返す。期限切れまたは未保持の場合は空文字列。
// expを持たないトークンは期限なしとして扱う。
func (c *Client) bearerToken(now time.Time) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return ""
	}
	if !c.tokenExp.IsZero() && !now.Before(c.tokenExp) {
		return ""
	}
	return c.token
}

// parseClaims は署名を検証せずにJWTのクレームを取り出す。
func parseClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims, nil
}
