// Package store はワークスペースごとの状態コンテナを提供する。
// 各コンテナは決められた更新操作だけで変更され、初期値が定義されている。
package store

import (
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/markboard/internal/model"
)

// AuthStore はログイン中のユーザーを保持する。初期値はユーザーなし。
type AuthStore struct {
	mu   sync.RWMutex
	user *model.AuthUser
}

// NewAuthStore はAuthStoreの新しいインスタンスを生成する。
func NewAuthStore() *AuthStore {
	return &AuthStore{}
}

// User はログイン中のユーザーを返す。未ログインの場合はnil。
func (s *AuthStore) User() *model.AuthUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// SetUser はユーザーを設定する。nilを渡すとログアウト状態になる。
func (s *AuthStore) SetUser(user *model.AuthUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user == nil {
		s.user = nil
		return
	}
	u := *user
	s.user = &u
}

// Clear はユーザーを破棄する。
func (s *AuthStore) Clear() {
	s.SetUser(nil)
}

// Authenticated はユーザーが設定されているかを返す。
func (s *AuthStore) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// SessionState はアップロードセッションの状態。
type SessionState struct {
	SessionID    string
	ExpiresInSec int
	Active       bool
}

// SessionStore はアップロードセッションを保持する。初期値はセッションなし。
// 変更はOnChangeで登録したリスナーに通知される。
type SessionStore struct {
	mu        sync.RWMutex
	state     SessionState
	listeners []func(SessionState)
}

// NewSessionStore はSessionStoreの新しいインスタンスを生成する。
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// OnChange は変更時に呼ばれるリスナーを登録する。
func (s *SessionStore) OnChange(f func(SessionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, f)
}

// Get は現在の状態を返す。
func (s *SessionStore) Get() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set はセッションを設定する。
func (s *SessionStore) Set(sessionID string, expiresInSec int) {
	s.update(SessionState{SessionID: sessionID, ExpiresInSec: expiresInSec, Active: true})
}

// Clear はセッションを破棄する。
func (s *SessionStore) Clear() {
	s.update(SessionState{})
}

func (s *SessionStore) update(next SessionState) {
	s.mu.Lock()
	s.state = next
	listeners := append([]func(SessionState){}, s.listeners...)
	s.mu.Unlock()

	for _, f := range listeners {
		f(next)
	}
}

// Selectors は学校・年度・クラス・四半期の選択状態。
type Selectors struct {
	School    string
	Year      string
	Classroom string
	Quarter   string
}

// ReportFilter はレポート取得に使う条件を返す。
func (s Selectors) ReportFilter() model.ReportFilter {
	return model.ReportFilter{Class: s.Classroom, Quarter: s.Quarter}
}

// DefaultSelectors は選択状態の初期値を返す。年度は now の年。
func DefaultSelectors(now time.Time) Selectors {
	return Selectors{
		School:    "School #1",
		Year:      strconv.Itoa(now.Year()),
		Classroom: "7A",
		Quarter:   "1",
	}
}

// SelectorsStore は選択状態を保持する。
type SelectorsStore struct {
	mu    sync.RWMutex
	state Selectors
}

// NewSelectorsStore は初期値を持つSelectorsStoreを生成する。
func NewSelectorsStore(now time.Time) *SelectorsStore {
	return &SelectorsStore{state: DefaultSelectors(now)}
}

// Get は現在の選択状態を返す。
func (s *SelectorsStore) Get() Selectors {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetSchool は学校を設定する。
func (s *SelectorsStore) SetSchool(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.School = v
}

// SetYear は年度を設定する。
func (s *SelectorsStore) SetYear(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Year = v
}

// SetClassroom はクラスを設定する。
func (s *SelectorsStore) SetClassroom(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Classroom = v
}

// SetQuarter は四半期を設定する。
func (s *SelectorsStore) SetQuarter(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Quarter = v
}
