package query

import "sync"

// ViewState はビューが表示する1つのキーの状態。
type ViewState[T any] struct {
	Key    Key
	Status Status
	Data   T
	Err    error
}

// Ticket はBeginで発行される取得の受付票。Commitで結果を反映するときに使う。
type Ticket struct {
	key Key
	seq uint64
}

// Key は受付票のキーを返す。
func (t Ticket) Key() Key {
	return t.key
}

// View は一度に1つのキーを表示するビューの状態。
// キーが変わった後に完了した古いリクエストの結果や、
// 後から発行されたリクエストより遅れて完了した結果は反映しない。
// 表示中のキーはCacheに購読として登録される。
type View[T any] struct {
	cache *Cache

	mu      sync.Mutex
	sub     *Subscription
	seq     uint64
	applied uint64
	state   ViewState[T]
	closed  bool
}

// NewView はViewの新しいインスタンスを生成する。
func NewView[T any](cache *Cache) *View[T] {
	return &View[T]{cache: cache}
}

// Begin は表示するキーを設定し、取得の受付票を発行する。
// キーが変わった場合は購読を付け替え、前のキーの結果は表示から外す。
func (v *View[T]) Begin(key Key) Ticket {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.seq++
	if v.closed {
		return Ticket{key: key, seq: v.seq}
	}

	if v.sub == nil || v.sub.Key() != key {
		if v.sub != nil {
			v.sub.Close()
		}
		v.sub = v.cache.Subscribe(key)
		v.state = ViewState[T]{Key: key, Status: StatusLoading}
		if res, ok := v.cache.Peek(key); ok && res.Status == StatusSuccess {
			if data, ok := res.Data.(T); ok {
				v.state.Data = data
			}
		}
	} else {
		v.state.Status = StatusLoading
	}

	return Ticket{key: key, seq: v.seq}
}

// Commit は受付票に対応する取得結果を反映する。
// ビューが閉じている、キーが現在のものと異なる、またはより新しい受付票の結果が
// すでに反映されている場合は何もせずfalseを返す。
func (v *View[T]) Commit(t Ticket, data T, err error) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed || t.key != v.state.Key || t.seq <= v.applied {
		return false
	}

	v.applied = t.seq
	if err != nil {
		v.state.Status = StatusError
		v.state.Err = err
		return true
	}
	v.state = ViewState[T]{Key: t.key, Status: StatusSuccess, Data: data}
	return true
}

// Current は現在の表示状態を返す。
func (v *View[T]) Current() ViewState[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Close は購読を解除し、以降の反映を拒否する。
func (v *View[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	if v.sub != nil {
		v.sub.Close()
		v.sub = nil
	}
}
