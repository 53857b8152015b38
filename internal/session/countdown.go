// Package session はアップロードセッションの残り時間のカウントダウンを提供する。
// 残り時間はサーバーの有効期限の近似値であり、アクセス制御には使わない。
package session

import (
	"sync"
	"time"
)

// DefaultWarningThreshold は期限切れ警告を出す残り秒数。
const DefaultWarningThreshold = 120

// Ticker は一定間隔で時刻を送るチャネルを持つ。
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Option はCountdownの生成オプション。
type Option func(*Countdown)

// WithTicker はティッカーの生成関数を差し替える。テストで使う。
func WithTicker(f func(d time.Duration) Ticker) Option {
	return func(c *Countdown) {
		c.newTicker = f
	}
}

// WithThreshold は警告を出す残り秒数を設定する。
func WithThreshold(sec int) Option {
	return func(c *Countdown) {
		if sec > 0 {
			c.threshold = sec
		}
	}
}

// Countdown はセッションの残り秒数を1秒ごとに減らす。
// 状態は「セッションなし」と「カウント中」の2つ。
// カウント中に残り秒数がしきい値を上から跨いだときに1回だけ通知する。
// しきい値以下の値で開始した場合は跨いでいないので通知しない。
type Countdown struct {
	threshold int
	notify    func(remaining int)
	newTicker func(d time.Duration) Ticker

	mu        sync.Mutex
	remaining int
	counting  bool
	warned    bool
	stop      chan struct{}
	gen       uint64
}

// NewCountdown はCountdownの新しいインスタンスを生成する。notifyはnil可。
func NewCountdown(notify func(remaining int), opts ...Option) *Countdown {
	c := &Countdown{
		threshold: DefaultWarningThreshold,
		notify:    notify,
		newTicker: func(d time.Duration) Ticker {
			return realTicker{t: time.NewTicker(d)}
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set はサーバーから受け取った残り秒数でカウントを開始する。
// 既存のティッカーは止めてから新しく開始するため、ティッカーは常に最大1つ。
func (c *Countdown) Set(expiresInSec int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.remaining = max(expiresInSec, 0)
	c.counting = true
	c.warned = false
	c.startLocked()
}

// Start は停止中のティッカーを再開する。カウント中でなければ何もしない。
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.counting || c.stop != nil {
		return
	}
	c.startLocked()
}

// Stop は残り秒数を保持したままティッカーを止める。
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Clear はセッションなしの状態に戻し、ティッカーを止める。
func (c *Countdown) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.counting = false
	c.remaining = 0
	c.warned = false
}

// Remaining は残り秒数とカウント中かどうかを返す。
func (c *Countdown) Remaining() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining, c.counting
}

// Running はティッカーが動作中かを返す。
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// Tick は残り秒数を1減らす。0未満にはならない。
// しきい値を跨いだ場合は通知し、その後は同じセッションの間通知しない。
func (c *Countdown) Tick() int {
	c.mu.Lock()
	next, fire := c.tickLocked()
	c.mu.Unlock()

	if fire && c.notify != nil {
		c.notify(next)
	}
	return next
}

// tickFrom はgen世代のティッカーからの1秒を反映する。
// SetやStopでティッカーが替わった後に届いた分は捨てる。
func (c *Countdown) tickFrom(gen uint64) {
	c.mu.Lock()
	if c.stop == nil || c.gen != gen {
		c.mu.Unlock()
		return
	}
	next, fire := c.tickLocked()
	c.mu.Unlock()

	if fire && c.notify != nil {
		c.notify(next)
	}
}

func (c *Countdown) tickLocked() (int, bool) {
	if !c.counting {
		return 0, false
	}

	prev := c.remaining
	next := max(prev-1, 0)
	c.remaining = next

	fire := !c.warned && prev > c.threshold && next <= c.threshold
	if fire {
		c.warned = true
	}
	return next, fire
}

func (c *Countdown) startLocked() {
	stop := make(chan struct{})
	c.stop = stop
	c.gen++
	go c.run(c.newTicker(time.Second), stop, c.gen)
}

func (c *Countdown) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Countdown) run(t Ticker, stop <-chan struct{}, gen uint64) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			c.tickFrom(gen)
		}
	}
}
