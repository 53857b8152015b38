package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/hitoshi/markboard/internal/model"
	"golang.org/x/time/rate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:  1,
		GeneralBurst: 2,
		UploadRate:   rate.Limit(1.0 / 60.0),
		UploadBurst:  1,
	}
}

// --- 画面全般のレート制限 ---

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())

	ws := newTestWorkspace(t, "http://backend.invalid")
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestWithWorkspace(http.MethodGet, "/students", ws))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())

	ws := newTestWorkspace(t, "http://backend.invalid")
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestWithWorkspace(http.MethodGet, "/", ws))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithWorkspace(http.MethodGet, "/", ws))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
}

func TestRateLimitMiddleware_IsolatesWorkspaces(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())

	first := newTestWorkspace(t, "http://backend.invalid")
	second := newTestWorkspace(t, "http://backend.invalid")
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestWithWorkspace(http.MethodGet, "/", first))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithWorkspace(http.MethodGet, "/", second))
	if w.Code != http.StatusOK {
		t.Errorf("別のワークスペースは制限されない: status = %d", w.Code)
	}
	if rl.Len() != 2 {
		t.Errorf("Len = %d, want 2", rl.Len())
	}
}

func TestRateLimitMiddleware_NoWorkspace_Returns500(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())

	w := httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// --- アップロードのレート制限 ---

func TestUploadRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())

	ws := newTestWorkspace(t, "http://backend.invalid")
	upload := rl.UploadMiddleware()(okHandler())
	general := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	upload.ServeHTTP(w, requestWithWorkspace(http.MethodPost, "/upload", ws))
	if w.Code != http.StatusOK {
		t.Fatalf("first upload: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	upload.ServeHTTP(w, requestWithWorkspace(http.MethodPost, "/upload", ws))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second upload: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestWithWorkspace(http.MethodGet, "/", ws))
	if w.Code != http.StatusOK {
		t.Errorf("アップロード制限は画面全般に影響しない: status = %d", w.Code)
	}
	if rl.Len() != 1 {
		t.Errorf("Len = %d, want 1", rl.Len())
	}
}

// --- ワークスペースの破棄 ---

func TestRateLimiter_ForgetResetsWorkspace(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())

	ws := newTestWorkspace(t, "http://backend.invalid")
	handler := rl.GeneralMiddleware()(okHandler())
	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestWithWorkspace(http.MethodGet, "/", ws))
	}

	rl.Forget(ws.ID)
	if rl.Len() != 0 {
		t.Fatalf("Len = %d, want 0", rl.Len())
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithWorkspace(http.MethodGet, "/", ws))
	if w.Code != http.StatusOK {
		t.Errorf("Forget 後は新しいバケットで数える: status = %d", w.Code)
	}
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 10)
	if cfg.GeneralRate != rate.Limit(2) || cfg.GeneralBurst != 120 {
		t.Errorf("general = %v/%d", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.UploadBurst != 10 {
		t.Errorf("UploadBurst = %d, want 10", cfg.UploadBurst)
	}
	if DefaultRateLimiterConfig() != cfg {
		t.Error("DefaultRateLimiterConfig should equal NewRateLimiterConfig(120, 10)")
	}
}
