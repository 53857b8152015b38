package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultGCTime は購読者がいなくなったエントリを破棄するまでの時間。
const DefaultGCTime = 5 * time.Minute

// DefaultStaleTime は成功結果を再取得せずに表示する期間の既定値。
const DefaultStaleTime = 30 * time.Second

// Status は取得結果の状態。
type Status int

const (
	// StatusLoading は取得中、または未取得。
	StatusLoading Status = iota
	// StatusError は直近の取得が失敗した。
	StatusError
	// StatusSuccess は直近の取得が成功した。
	StatusSuccess
)

// String はStatusの文字列表現を返す。
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	case StatusSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Result はキーごとの取得結果。
type Result struct {
	Status    Status
	Data      any
	Err       error
	UpdatedAt time.Time
}

// Fetcher は1回の取得処理。
type Fetcher func(ctx context.Context) (any, error)

// Recorder はキャッシュ動作のメトリクス記録インターフェース。
type Recorder interface {
	RecordCacheHit(endpoint string)
	RecordCacheDedupe(endpoint string)
	RecordStaleDiscard(endpoint string)
}

// Timer はStopのみを持つタイマー。*time.Timer が満たす。
type Timer interface {
	Stop() bool
}

// AfterFunc は d 経過後に f を呼び出すタイマーを生成する関数。
type AfterFunc func(d time.Duration, f func()) Timer

// Option はCacheの生成オプション。
type Option func(*Cache)

// WithGCTime は購読者がいなくなったエントリの保持時間を設定する。
func WithGCTime(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.gcTime = d
		}
	}
}

// WithStaleTime は成功結果を再取得せずに返す期間を設定する。0以下の場合は毎回取得する。
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) {
		c.staleTime = d
	}
}

// WithOnError は失敗したリクエストごとに1回呼ばれる関数を設定する。
// 待機者の数にかかわらず呼び出しは1回。
func WithOnError(f func(key Key, err error)) Option {
	return func(c *Cache) {
		c.onError = f
	}
}

// WithRecorder はメトリクスの記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(c *Cache) {
		c.recorder = r
	}
}

// WithLogger は購読の付け外しを記録するロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAfterFunc はGCタイマーの生成関数を差し替える。テストで使う。
func WithAfterFunc(f AfterFunc) Option {
	return func(c *Cache) {
		c.afterFunc = f
	}
}

// WithClock は現在時刻の取得関数を差し替える。テストで使う。
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// call は送信中の1回のリクエスト。
type call struct {
	done chan struct{}
	data any
	err  error
	gen  uint64
}

// entry はキー1つ分のキャッシュ状態。
type entry struct {
	result  Result
	hasData bool
	refs    int
	call    *call
	gen     uint64
	gcTimer Timer
}

// Cache はキー単位のリクエストキャッシュ。
type Cache struct {
	gcTime    time.Duration
	staleTime time.Duration
	onError   func(Key, error)
	recorder  Recorder
	afterFunc AfterFunc
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[Key]*entry
	closed  bool
}

// New はCacheの新しいインスタンスを生成する。
func New(opts ...Option) *Cache {
	c := &Cache{
		gcTime:  DefaultGCTime,
		entries: make(map[Key]*entry),
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscription はキーの購読。購読者がいる間エントリは破棄されない。
type Subscription struct {
	id    string
	key   Key
	cache *Cache
	once  sync.Once
}

// ID は購読の識別子を返す。
func (s *Subscription) ID() string {
	return s.id
}

// Key は購読中のキーを返す。
func (s *Subscription) Key() Key {
	return s.key
}

// Close は購読を解除する。複数回呼んでも解除は1回だけ。
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cache.release(s.key)
		s.cache.logger.Debug("query unsubscribed",
			slog.String("key", s.key.String()),
			slog.String("subscription_id", s.id),
		)
	})
}

// Subscribe はキーを購読する。
func (c *Cache) Subscribe(key Key) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	e.refs++
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}

	sub := &Subscription{
		id:    uuid.New().String(),
		key:   key,
		cache: c,
	}
	c.logger.Debug("query subscribed",
		slog.String("key", key.String()),
		slog.String("subscription_id", sub.id),
		slog.Int("refs", e.refs),
	)
	return sub
}

// Fetch はキーの取得を行う。
// 同じキーのリクエストが送信中であれば新たに送信せず、その結果を共有する。
// fnは呼び出し元のコンテキストのキャンセルとは切り離して実行されるため、
// 呼び出し元が先に離脱しても他の待機者は結果を受け取れる。
func (c *Cache) Fetch(ctx context.Context, key Key, fn Fetcher) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("query cache is closed")
	}

	e := c.entryLocked(key)
	if c.freshLocked(e) {
		data := e.result.Data
		c.mu.Unlock()
		c.recordHit(key)
		return data, nil
	}

	cl := e.call
	if cl != nil {
		c.mu.Unlock()
		c.recordDedupe(key)
	} else {
		cl = &call{done: make(chan struct{}), gen: e.gen}
		e.call = cl
		e.result.Status = StatusLoading
		e.result.Err = nil
		c.mu.Unlock()
		go c.run(context.WithoutCancel(ctx), key, e, cl, fn)
	}

	select {
	case <-cl.done:
		return cl.data, cl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get はFetchの型付き版。
func Get[T any](ctx context.Context, c *Cache, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	data, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := data.(T)
	if !ok {
		return zero, fmt.Errorf("query %s: unexpected result type %T", key, data)
	}
	return typed, nil
}

// Peek はキーの現在の結果を取得せずに返す。
func (c *Cache) Peek(key Key) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	return e.result, true
}

// Invalidate は全エントリの結果を無効にする。
// 送信中のリクエストの結果は反映されず、次のFetchで新たに送信する。
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.gen++
		e.call = nil
		e.hasData = false
		e.result = Result{Status: StatusLoading}
	}
}

// Len は保持しているエントリ数を返す。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close は全エントリを破棄し、以降の取得を拒否する。
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for key, e := range c.entries {
		if e.gcTimer != nil {
			e.gcTimer.Stop()
		}
		delete(c.entries, key)
	}
}

// run はリクエストを実行し、エントリが差し替えられていなければ結果を反映する。
func (c *Cache) run(ctx context.Context, key Key, e *entry, cl *call, fn Fetcher) {
	data, err := fn(ctx)

	c.mu.Lock()
	current := !c.closed && c.entries[key] == e && e.gen == cl.gen
	if e.call == cl {
		e.call = nil
	}
	if current {
		if err != nil {
			e.result.Status = StatusError
			e.result.Err = err
		} else {
			e.result = Result{Status: StatusSuccess, Data: data, UpdatedAt: c.now()}
			e.hasData = true
		}
	}
	if !c.closed && c.entries[key] == e && e.refs == 0 && e.call == nil {
		c.scheduleGCLocked(key, e)
	}
	c.mu.Unlock()

	cl.data = data
	cl.err = err
	close(cl.done)

	if !current {
		c.recordStaleDiscard(key)
	}
	if err != nil && c.onError != nil {
		c.onError(key, err)
	}
}

// release は購読者数を減らし、0になればGCを予約する。
func (c *Cache) release(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.refs > 0 {
		e.refs--
	}
	if e.refs == 0 {
		c.scheduleGCLocked(key, e)
	}
}

func (c *Cache) scheduleGCLocked(key Key, e *entry) {
	if c.closed {
		return
	}
	if e.gcTimer != nil {
		e.gcTimer.Stop()
	}
	e.gcTimer = c.afterFunc(c.gcTime, func() { c.collect(key, e) })
}

// collect は購読者も送信中のリクエストもないエントリを破棄する。
func (c *Cache) collect(key Key, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[key] != e || e.refs > 0 || e.call != nil {
		return
	}
	delete(c.entries, key)
}

func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// freshLocked は成功結果をそのまま返してよいかを判定する。
func (c *Cache) freshLocked(e *entry) bool {
	if c.staleTime <= 0 || !e.hasData || e.result.Status != StatusSuccess {
		return false
	}
	return c.now().Sub(e.result.UpdatedAt) < c.staleTime
}

func (c *Cache) recordHit(key Key) {
	if c.recorder != nil {
		c.recorder.RecordCacheHit(key.Endpoint)
	}
}

func (c *Cache) recordDedupe(key Key) {
	if c.recorder != nil {
		c.recorder.RecordCacheDedupe(key.Endpoint)
	}
}

func (c *Cache) recordStaleDiscard(key Key) {
	if c.recorder != nil {
		c.recorder.RecordStaleDiscard(key.Endpoint)
	}
}
