package workspace

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/markboard/internal/api"
)

// RegistryConfig はRegistryの設定。
type RegistryConfig struct {
	Workspace       Config
	IdleTTL         time.Duration // 最終アクセスからこの時間が経過したワークスペースを破棄する
	CleanupInterval time.Duration // 期限切れワークスペースの確認間隔
}

// GaugeRecorder はワークスペース数の記録先。
type GaugeRecorder interface {
	SetWorkspaces(n int)
}

// Registry はワークスペースをIDで管理する。
// バックグラウンドで一定時間アクセスのないワークスペースを破棄する。
type Registry struct {
	config   RegistryConfig
	recorder Recorder
	logger   *slog.Logger
	apiOpts  []api.Option
	now      func() time.Time

	mu       sync.RWMutex
	items    map[string]*Workspace
	onRemove []func(id string)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRegistry は新しいRegistryを生成し、期限切れワークスペースの破棄を開始する。
// apiOptsは各ワークスペースのクライアント生成時に渡される。
func NewRegistry(config RegistryConfig, recorder Recorder, logger *slog.Logger, apiOpts ...api.Option) *Registry {
	if config.IdleTTL <= 0 {
		config.IdleTTL = 2 * time.Hour
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	r := &Registry{
		config:   config,
		recorder: recorder,
		logger:   logger,
		apiOpts:  apiOpts,
		now:      time.Now,
		items:    make(map[string]*Workspace),
		stopCh:   make(chan struct{}),
	}

	go r.cleanupLoop()

	return r
}

// Create は新しいワークスペースを生成して登録する。
func (r *Registry) Create() (*Workspace, error) {
	w, err := New(r.config.Workspace, r.recorder, r.logger, r.apiOpts...)
	if err != nil {
		return nil, err
	}
	w.Touch(r.now())

	r.mu.Lock()
	r.items[w.ID] = w
	n := len(r.items)
	r.mu.Unlock()

	r.recordCount(n)
	r.logger.Info("workspace created", slog.String("workspace_id", w.ID))
	return w, nil
}

// OnRemove はワークスペースが破棄されたときに呼ぶ関数を登録する。
// 明示的な削除、アイドル期限切れ、Stopのいずれでも呼ばれる。
func (r *Registry) OnRemove(f func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = append(r.onRemove, f)
}

// Get はIDに対応するワークスペースを返し、最終アクセス時刻を更新する。
func (r *Registry) Get(id string) (*Workspace, bool) {
	r.mu.RLock()
	w, ok := r.items[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	w.Touch(r.now())
	return w, true
}

// Remove はワークスペースを破棄する。
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	w, ok := r.items[id]
	delete(r.items, id)
	n := len(r.items)
	r.mu.Unlock()

	if ok {
		r.closeAll([]*Workspace{w})
		r.recordCount(n)
	}
}

// Len は登録されているワークスペース数を返す。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Stop はバックグラウンド処理を止め、すべてのワークスペースを破棄する。
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)

		r.mu.Lock()
		items := make([]*Workspace, 0, len(r.items))
		for _, w := range r.items {
			items = append(items, w)
		}
		r.items = make(map[string]*Workspace)
		r.mu.Unlock()

		r.closeAll(items)
		r.recordCount(0)
	})
}

// cleanupLoop はバックグラウンドで期限切れワークスペースを定期的に破棄する。
func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからIdleTTLを超えたワークスペースを破棄する。
func (r *Registry) cleanup() int {
	now := r.now()

	var expired []*Workspace
	r.mu.Lock()
	for id, w := range r.items {
		if now.Sub(w.LastSeen()) > r.config.IdleTTL {
			expired = append(expired, w)
			delete(r.items, id)
		}
	}
	n := len(r.items)
	r.mu.Unlock()

	r.closeAll(expired)
	if len(expired) > 0 {
		r.recordCount(n)
		r.logger.Info("idle workspaces evicted", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// closeAll はワークスペースを破棄し、登録された関数にIDを通知する。
func (r *Registry) closeAll(items []*Workspace) {
	r.mu.RLock()
	hooks := r.onRemove
	r.mu.RUnlock()

	for _, w := range items {
		w.Close()
		for _, f := range hooks {
			f(w.ID)
		}
	}
}

func (r *Registry) recordCount(n int) {
	if g, ok := r.recorder.(GaugeRecorder); ok {
		g.SetWorkspaces(n)
	}
}
