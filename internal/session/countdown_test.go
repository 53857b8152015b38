package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTicker は手動で時刻を送るティッカー。
type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

// tickerFactory は生成したティッカーを記録する。
type tickerFactory struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *tickerFactory) New(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *tickerFactory) Last() *fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickers[len(f.tickers)-1]
}

func (f *tickerFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("タイムアウト")
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestCountdown(notify func(int)) (*Countdown, *tickerFactory) {
	factory := &tickerFactory{}
	return NewCountdown(notify, WithTicker(factory.New)), factory
}

func TestCountdown_WarningFiresOnceAtCrossing(t *testing.T) {
	var warnings []int
	c, _ := newTestCountdown(func(remaining int) { warnings = append(warnings, remaining) })
	defer c.Clear()

	c.Set(125)
	for i := 0; i < 5; i++ {
		c.Tick()
	}

	if len(warnings) != 1 || warnings[0] != 120 {
		t.Fatalf("warnings = %v, want [120]", warnings)
	}

	for i := 0; i < 10; i++ {
		c.Tick()
	}
	if len(warnings) != 1 {
		t.Errorf("警告は1回だけであるべき: %v", warnings)
	}
}

func TestCountdown_NoWarningWhenStartedBelowThreshold(t *testing.T) {
	tests := []struct {
		name    string
		initial int
	}{
		{name: "100秒", initial: 100},
		{name: "ちょうどしきい値", initial: 120},
		{name: "0秒", initial: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warned := false
			c, _ := newTestCountdown(func(int) { warned = true })
			defer c.Clear()

			c.Set(tt.initial)
			for i := 0; i < 200; i++ {
				c.Tick()
			}
			if warned {
				t.Error("しきい値を跨いでいないので警告してはならない")
			}
		})
	}
}

func TestCountdown_FloorsAtZero(t *testing.T) {
	c, _ := newTestCountdown(nil)
	defer c.Clear()

	c.Set(2)
	c.Tick()
	c.Tick()
	if got := c.Tick(); got != 0 {
		t.Errorf("Tick() = %d, want 0", got)
	}
	remaining, counting := c.Remaining()
	if remaining != 0 || !counting {
		t.Errorf("Remaining() = %d, %v", remaining, counting)
	}

	c.Set(-5)
	if remaining, _ := c.Remaining(); remaining != 0 {
		t.Errorf("負の値は0にすべき: %d", remaining)
	}
}

func TestCountdown_SetResetsWarning(t *testing.T) {
	count := 0
	c, _ := newTestCountdown(func(int) { count++ })
	defer c.Clear()

	c.Set(121)
	c.Tick()
	c.Set(121)
	c.Tick()
	if count != 2 {
		t.Errorf("新しいセッションごとに1回警告すべき: %d", count)
	}
}

func TestCountdown_TickerDrivesTicks(t *testing.T) {
	var fired atomic.Int32
	c, factory := newTestCountdown(func(int) { fired.Add(1) })
	defer c.Clear()

	c.Set(122)
	ticker := factory.Last()
	ticker.ch <- time.Now()
	ticker.ch <- time.Now()
	waitFor(t, func() bool {
		r, _ := c.Remaining()
		return r == 120
	})
	if fired.Load() != 1 {
		t.Errorf("警告回数 = %d, want 1", fired.Load())
	}
}

func TestCountdown_SetReplacesTicker(t *testing.T) {
	c, factory := newTestCountdown(nil)
	defer c.Clear()

	c.Set(300)
	first := factory.Last()
	c.Set(200)

	waitFor(t, func() bool { return first.stopped.Load() })
	if factory.Count() != 2 {
		t.Errorf("ティッカー数 = %d, want 2", factory.Count())
	}
	if factory.Last().stopped.Load() {
		t.Error("新しいティッカーは動作中であるべき")
	}
}

func TestCountdown_StaleTickerTickIsDropped(t *testing.T) {
	c, _ := newTestCountdown(nil)
	defer c.Clear()

	c.Set(10)
	c.mu.Lock()
	old := c.gen
	c.mu.Unlock()

	// 前のティッカーの1秒が新しいセッションの開始後に届いた
	c.Set(50)
	c.tickFrom(old)
	if remaining, _ := c.Remaining(); remaining != 50 {
		t.Errorf("remaining = %d, want 50（古いティッカーの分は捨てるべき）", remaining)
	}

	c.mu.Lock()
	current := c.gen
	c.mu.Unlock()
	c.tickFrom(current)
	if remaining, _ := c.Remaining(); remaining != 49 {
		t.Errorf("remaining = %d, want 49", remaining)
	}
}

func TestCountdown_TickAfterStopIsDropped(t *testing.T) {
	c, _ := newTestCountdown(nil)
	defer c.Clear()

	c.Set(30)
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	c.Stop()
	c.tickFrom(gen)
	if remaining, counting := c.Remaining(); remaining != 30 || !counting {
		t.Errorf("Remaining() = (%d, %v), want (30, true)", remaining, counting)
	}
}

func TestCountdown_ClearStopsTicker(t *testing.T) {
	c, factory := newTestCountdown(nil)

	c.Set(300)
	c.Clear()

	ticker := factory.Last()
	waitFor(t, func() bool { return ticker.stopped.Load() })

	remaining, counting := c.Remaining()
	if remaining != 0 || counting {
		t.Errorf("Clear 後 = %d, %v", remaining, counting)
	}
	if c.Running() {
		t.Error("Clear 後にティッカーが残っている")
	}
	if got := c.Tick(); got != 0 {
		t.Errorf("セッションなしの Tick() = %d, want 0", got)
	}
}

func TestCountdown_StopAndStart(t *testing.T) {
	c, factory := newTestCountdown(nil)
	defer c.Clear()

	c.Start()
	if factory.Count() != 0 {
		t.Fatal("セッションなしで Start してもティッカーを作らないべき")
	}

	c.Set(300)
	c.Stop()
	if remaining, counting := c.Remaining(); remaining != 300 || !counting {
		t.Errorf("Stop 後も残り秒数は保持すべき: %d, %v", remaining, counting)
	}
	if c.Running() {
		t.Error("Stop 後にティッカーが残っている")
	}

	c.Start()
	c.Start()
	if factory.Count() != 2 {
		t.Errorf("ティッカー数 = %d, want 2", factory.Count())
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		sec  int
		want string
	}{
		{0, "0 секунд"},
		{1, "1 секунда"},
		{2, "2 секунды"},
		{4, "4 секунды"},
		{5, "5 секунд"},
		{11, "11 секунд"},
		{12, "12 секунд"},
		{21, "21 секунда"},
		{22, "22 секунды"},
		{111, "111 секунд"},
		{125, "125 секунд"},
		{-3, "0 секунд"},
	}

	for _, tt := range tests {
		if got := FormatRemaining(tt.sec); got != tt.want {
			t.Errorf("FormatRemaining(%d) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}
