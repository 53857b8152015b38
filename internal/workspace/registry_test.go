package workspace

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/markboard/internal/api"
)

func newTestRegistry(t *testing.T, rec Recorder) (*Registry, *time.Time) {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	cfg := RegistryConfig{
		Workspace:       Config{API: api.Config{BaseURL: server.URL}},
		IdleTTL:         time.Hour,
		CleanupInterval: time.Hour,
	}
	r := NewRegistry(cfg, rec, newTestLogger(), api.WithHTTPClient(server.Client()))
	t.Cleanup(r.Stop)

	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestRegistry_CreateGetRemove(t *testing.T) {
	rec := &mockRecorder{}
	r, _ := newTestRegistry(t, rec)

	w, err := r.Create()
	if err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}
	if got, ok := r.Get(w.ID); !ok || got != w {
		t.Fatal("作成したワークスペースを取得できない")
	}
	if rec.workspaces != 1 {
		t.Errorf("workspaces = %d, want 1", rec.workspaces)
	}

	r.Remove(w.ID)
	if _, ok := r.Get(w.ID); ok {
		t.Error("削除後に取得できてはならない")
	}
	if w.Alive() {
		t.Error("削除したワークスペースは破棄されるべき")
	}
	if rec.workspaces != 0 {
		t.Errorf("workspaces = %d, want 0", rec.workspaces)
	}
}

func TestRegistry_CleanupEvictsIdle(t *testing.T) {
	r, now := newTestRegistry(t, nil)

	idle, err := r.Create()
	if err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}
	*now = now.Add(50 * time.Minute)
	active, err := r.Create()
	if err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}

	*now = now.Add(30 * time.Minute)
	if n := r.cleanup(); n != 1 {
		t.Fatalf("cleanup = %d, want 1", n)
	}
	if _, ok := r.Get(idle.ID); ok || idle.Alive() {
		t.Error("アクセスのないワークスペースは破棄されるべき")
	}
	if _, ok := r.Get(active.ID); !ok {
		t.Error("アクセスのあるワークスペースは残すべき")
	}
}

func TestRegistry_Stop(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	w, err := r.Create()
	if err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}

	r.Stop()
	r.Stop()

	if r.Len() != 0 || w.Alive() {
		t.Error("Stop ですべてのワークスペースを破棄すべき")
	}
}

func TestRegistry_OnRemoveNotifiedForEveryEviction(t *testing.T) {
	r, now := newTestRegistry(t, nil)

	var removed []string
	r.OnRemove(func(id string) { removed = append(removed, id) })

	explicit, _ := r.Create()
	idle, _ := r.Create()
	*now = now.Add(30 * time.Minute)
	remaining, _ := r.Create()
	*now = now.Add(45 * time.Minute)

	r.Remove(explicit.ID)
	r.Remove(explicit.ID)
	r.cleanup()
	r.Stop()

	want := []string{explicit.ID, idle.ID, remaining.ID}
	if len(removed) != len(want) {
		t.Fatalf("removed = %v, want %v", removed, want)
	}
	for i := range want {
		if removed[i] != want[i] {
			t.Errorf("removed[%d] = %s, want %s", i, removed[i], want[i])
		}
	}
}
