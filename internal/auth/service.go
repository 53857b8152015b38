// Package auth はログイン・登録・ログアウトと、保護ページ表示前のセッション確認を提供する。
// 認証そのものはバックエンドが行い、ここでは結果をワークスペースの状態に反映する。
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hitoshi/markboard/internal/api"
	"github.com/hitoshi/markboard/internal/model"
	"github.com/hitoshi/markboard/internal/store"
)

// 画面に表示するメッセージ。
const (
	MsgLoginFailed          = "Не удалось войти. Попробуйте ещё раз."
	MsgIncorrectCredentials = "Неверный email или пароль"
	MsgRegisterFailed       = "Не удалось зарегистрироваться. Попробуйте ещё раз."
	MsgUserExists           = "Пользователь с таким email уже существует"
	MsgRegistered           = "Регистрация прошла успешно. Теперь войдите."
)

// Backend は認証に使うバックエンドAPI。*api.Client が満たす。
type Backend interface {
	Login(ctx context.Context, req api.LoginRequest) error
	Register(ctx context.Context, req api.RegisterRequest) (*model.AuthUser, error)
	Me(ctx context.Context) (*model.AuthUser, error)
	Logout(ctx context.Context) error
	SessionStatus(ctx context.Context) (*model.SessionStatus, error)
}

// Service は認証に関する操作を提供する。
type Service struct {
	backend  Backend
	users    *store.AuthStore
	sessions *store.SessionStore
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(backend Backend, users *store.AuthStore, sessions *store.SessionStore, logger *slog.Logger) *Service {
	return &Service{
		backend:  backend,
		users:    users,
		sessions: sessions,
		logger:   logger,
	}
}

// Login は入力を検証してからログインし、ユーザー情報を取得して保持する。
// 検証に失敗した場合はリクエストを発行せず *ValidationError を返す。
func (s *Service) Login(ctx context.Context, c Credentials) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := s.backend.Login(ctx, api.LoginRequest{Email: c.Email, Password: c.Password}); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}

	me, err := s.backend.Me(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch current user: %w", err)
	}

	s.users.SetUser(me)
	s.logger.Info("user logged in", slog.String("email", me.Email))
	return nil
}

// Register は入力を検証してからユーザーを登録する。登録後もログイン状態にはならない。
func (s *Service) Register(ctx context.Context, c Credentials) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if _, err := s.backend.Register(ctx, api.RegisterRequest{Email: c.Email, Password: c.Password}); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}

	s.logger.Info("user registered", slog.String("email", c.Email))
	return nil
}

// Bootstrap は保護ページの表示前にログイン状態を確認する。
// ユーザーを保持していればそのまま true を返す。保持していなければ
// ユーザー情報を取得し、続けてセッション状態を取得する。セッション状態の取得失敗は記録のみ行う。
// alive が false を返した時点で以降の結果は反映しない。
func (s *Service) Bootstrap(ctx context.Context, alive func() bool) bool {
	if s.users.Authenticated() {
		return true
	}

	me, err := s.backend.Me(ctx)
	if err != nil {
		s.logger.Info("session bootstrap failed", slog.String("error", err.Error()))
		return false
	}
	if !alive() {
		return false
	}
	s.users.SetUser(me)

	status, err := s.backend.SessionStatus(ctx)
	if err != nil {
		s.logger.Warn("failed to fetch session status", slog.String("error", err.Error()))
		return true
	}
	if alive() {
		s.sessions.Set(status.SessionID, status.ExpiresInSec)
	}
	return true
}

// Logout はログアウトし、ユーザーとセッションを破棄する。
// バックエンドの呼び出しが失敗してもローカルの状態は破棄する。
func (s *Service) Logout(ctx context.Context) {
	if err := s.backend.Logout(ctx); err != nil {
		s.logger.Warn("backend logout failed", slog.String("error", err.Error()))
	}
	s.users.Clear()
	s.sessions.Clear()
}

// ResolveErrorMessage はバックエンドのエラーを画面表示用のメッセージに変換する。
// 本文がJSONの場合は detail を、そうでなければ本文そのものを mapping で置き換える。
// 置き換えられない場合や通信エラーの場合は fallback を返す。
func ResolveErrorMessage(err error, fallback string, mapping map[string]string) string {
	if err == nil {
		return ""
	}

	message := api.Message(err)
	if message == "" || api.StatusCode(err) == 0 {
		return fallback
	}

	tryMap := func(v string) string {
		if mapped, ok := mapping[v]; ok {
			return mapped
		}
		return v
	}

	var body struct {
		Detail any `json:"detail"`
	}
	if jsonErr := json.Unmarshal([]byte(message), &body); jsonErr == nil {
		if detail, ok := body.Detail.(string); ok && detail != "" {
			return tryMap(detail)
		}
		return fallback
	}

	return tryMap(message)
}

// LoginErrorMessage はログイン失敗時のメッセージを返す。
func LoginErrorMessage(err error) string {
	return ResolveErrorMessage(err, MsgLoginFailed, map[string]string{
		"Incorrect credentials": MsgIncorrectCredentials,
	})
}

// RegisterErrorMessage は登録失敗時のメッセージを返す。
func RegisterErrorMessage(err error) string {
	return ResolveErrorMessage(err, MsgRegisterFailed, map[string]string{
		"User already exists": MsgUserExists,
	})
}
