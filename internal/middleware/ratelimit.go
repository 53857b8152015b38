package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/hitoshi/markboard/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate  rate.Limit // 画面全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst int
	UploadRate   rate.Limit // アップロードのレート（req/sec）。10/60
	UploadBurst  int
}

// DefaultRateLimiterConfig は画面全般 120 req/min、アップロード 10 req/min の設定を返す。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(120, 10)
}

// NewRateLimiterConfig は1分あたりの回数からレート制限設定を生成する。
func NewRateLimiterConfig(generalPerMin, uploadPerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:  rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst: generalPerMin,
		UploadRate:   rate.Limit(float64(uploadPerMin) / 60.0),
		UploadBurst:  uploadPerMin,
	}
}

// limitKind はワークスペースごとのトークンバケットの種類。
type limitKind int

const (
	limitGeneral limitKind = iota
	limitUpload
)

func (k limitKind) String() string {
	if k == limitUpload {
		return "upload"
	}
	return "general"
}

// workspaceLimits はワークスペース1つ分のトークンバケット。
type workspaceLimits struct {
	general *rate.Limiter
	upload  *rate.Limiter
}

// RateLimiter はワークスペースごとのレート制限を管理する。
// エントリはワークスペースの破棄に合わせてForgetで取り除く。
type RateLimiter struct {
	config RateLimiterConfig

	mu     sync.Mutex
	limits map[string]*workspaceLimits
}

// NewRateLimiter は新しいRateLimiterを生成する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		config: config,
		limits: make(map[string]*workspaceLimits),
	}
}

// GeneralMiddleware は画面全般のレート制限ミドルウェアを返す。
// WorkspaceMiddlewareの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(limitGeneral)
}

// UploadMiddleware はアップロード専用のレート制限ミドルウェアを返す。
// 画面全般のレート制限とは独立に動作する。
func (rl *RateLimiter) UploadMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(limitUpload)
}

// Forget はワークスペースのエントリを削除する。
func (rl *RateLimiter) Forget(wsID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limits, wsID)
}

// Len は管理しているワークスペース数を返す。
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limits)
}

func (rl *RateLimiter) middleware(kind limitKind) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wsID, err := WorkspaceIDFromContext(r.Context())
			if err != nil {
				WriteInternalServerError(w)
				return
			}

			limiter := rl.limiter(wsID, kind)
			if !limiter.Allow() {
				writeRateLimitResponse(w, r, limiter.Limit())
				slog.Warn("rate limit exceeded",
					slog.String("workspace_id", wsID),
					slog.String("limit_type", kind.String()),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) limiter(wsID string, kind limitKind) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limits[wsID]
	if !ok {
		l = &workspaceLimits{
			general: rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst),
			upload:  rate.NewLimiter(rl.config.UploadRate, rl.config.UploadBurst),
		}
		rl.limits[wsID] = l
	}
	if kind == limitUpload {
		return l.upload
	}
	return l.general
}

// writeRateLimitResponse は429を書き込む。
// Retry-Afterには1トークンが補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, req *http.Request, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteError(w, req, http.StatusTooManyRequests, model.NewRateLimitedError())
}
