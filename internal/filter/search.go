package filter

import (
	"sync"
	"time"
)

// DefaultDebounce は検索入力をURLに反映するまでの待機時間。
const DefaultDebounce = 300 * time.Millisecond

// Timer はStopのみを持つタイマー。*time.Timer が満たす。
type Timer interface {
	Stop() bool
}

// AfterFunc は d 経過後に f を呼び出すタイマーを生成する関数。
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SearchOption はSearchInputの生成オプション。
type SearchOption func(*SearchInput)

// WithAfterFunc はタイマーの生成関数を差し替える。テストで使う。
func WithAfterFunc(f AfterFunc) SearchOption {
	return func(s *SearchInput) {
		s.afterFunc = f
	}
}

// WithOnCommit はURLへの反映後に呼ばれる関数を設定する。
func WithOnCommit(f func(value string)) SearchOption {
	return func(s *SearchInput) {
		s.onCommit = f
	}
}

// SearchInput はフリーテキスト検索の入力欄。
// 入力は手元に保持し、最後の入力から待機時間が経過したときだけURLに反映する。
type SearchInput struct {
	state     *State
	field     string
	delay     time.Duration
	afterFunc AfterFunc
	onCommit  func(string)

	mu      sync.Mutex
	draft   string
	gen     uint64
	pending bool
	timer   Timer
	closed  bool
}

// NewSearchInput はSearchInputの新しいインスタンスを生成する。
// 入力欄の初期値は現在のURLの q パラメータ。
func NewSearchInput(state *State, delay time.Duration, opts ...SearchOption) *SearchInput {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	s := &SearchInput{
		state:     state,
		field:     FieldQuery,
		delay:     delay,
		afterFunc: realAfterFunc,
		draft:     state.Get(FieldQuery),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Change は入力値を更新し、待機時間を最後の入力から数え直す。
func (s *SearchInput) Change(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.draft = value
	s.gen++
	s.pending = true
	if s.timer != nil {
		s.timer.Stop()
	}
	gen := s.gen
	s.timer = s.afterFunc(s.delay, func() { s.fire(gen) })
}

// Draft は未反映分を含む現在の入力値を返す。
func (s *SearchInput) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Pending は反映待ちの入力があるかを返す。
func (s *SearchInput) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Flush は反映待ちの入力を待機時間を待たずにURLへ反映する。
func (s *SearchInput) Flush() {
	s.mu.Lock()
	if s.closed || !s.pending {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	value := s.commitLocked()
	s.mu.Unlock()

	s.notify(value)
}

// Close は待機中のタイマーを止め、以降の入力を無視する。
func (s *SearchInput) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// fire はタイマー満了時に呼ばれる。後続の入力で世代が進んでいれば何もしない。
func (s *SearchInput) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || !s.pending {
		s.mu.Unlock()
		return
	}
	value := s.commitLocked()
	s.mu.Unlock()

	s.notify(value)
}

// commitLocked は入力値をURLへ反映する。空の場合はキーを削除する。
func (s *SearchInput) commitLocked() string {
	s.pending = false
	s.timer = nil
	s.state.Set(s.field, s.draft)
	return s.draft
}

func (s *SearchInput) notify(value string) {
	if s.onCommit != nil {
		s.onCommit(value)
	}
}
