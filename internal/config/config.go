package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultAPIBaseURL はAPI_BASE_URLが未設定の場合に使うバックエンドのオリジン。
const DefaultAPIBaseURL = "http://localhost:8000"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	APIBaseURL        string
	AuthPathPrefix    string
	AuthLoginEncoding string
	APITimeout        time.Duration
	APIRateLimit      float64

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool

	// Workspace
	QueryGCTime       time.Duration
	QueryStaleTime    time.Duration
	SearchDebounce    time.Duration
	SessionWarningSec int
	WorkspaceIdleTTL  time.Duration

	// Table
	RowHeight      int
	ViewportHeight int
	Overscan       int

	// Rate Limit
	RateLimitGeneral int
	RateLimitUpload  int

	// Logging
	LogLevel slog.Level
}

// Load はカレントディレクトリの .env と環境変数からConfigを読み込む。
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile はenvFileと環境変数からConfigを読み込む。
// 設定済みの環境変数はenvFileの値で上書きしない。envFileが存在しない場合は環境変数のみを使う。
func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := &Config{}

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if cfg.APIBaseURL == "" {
		slog.Warn("API_BASE_URL is not set, using default", slog.String("api_base_url", DefaultAPIBaseURL))
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if u, err := url.Parse(cfg.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid API_BASE_URL: %q", cfg.APIBaseURL)
	}

	cfg.AuthPathPrefix = getEnvString("AUTH_PATH_PREFIX", "/auth")
	cfg.AuthLoginEncoding = getEnvString("AUTH_LOGIN_ENCODING", "form")
	if cfg.AuthLoginEncoding != "form" && cfg.AuthLoginEncoding != "json" {
		return nil, fmt.Errorf("invalid AUTH_LOGIN_ENCODING: %q (want form or json)", cfg.AuthLoginEncoding)
	}

	// Optional fields with defaults
	cfg.APITimeout = getEnvDuration("API_TIMEOUT", 15*time.Second)
	cfg.APIRateLimit = getEnvFloat("API_RATE_LIMIT", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("CONSOLE_BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.QueryGCTime = getEnvDuration("QUERY_GC_TIME", 5*time.Minute)
	// 負の値は再表示のたびに取得する
	cfg.QueryStaleTime = getEnvDuration("QUERY_STALE_TIME", 30*time.Second)
	cfg.SearchDebounce = getEnvDuration("SEARCH_DEBOUNCE", 300*time.Millisecond)
	cfg.SessionWarningSec = getEnvInt("SESSION_WARNING_SEC", 120)
	cfg.WorkspaceIdleTTL = getEnvDuration("WORKSPACE_IDLE_TTL", 2*time.Hour)
	cfg.RowHeight = getEnvInt("ROW_HEIGHT", 56)
	cfg.ViewportHeight = getEnvInt("VIEWPORT_HEIGHT", 480)
	cfg.Overscan = getEnvInt("OVERSCAN", 8)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitUpload = getEnvInt("RATE_LIMIT_UPLOAD", 10)
	cfg.LogLevel = getEnvLevel("LOG_LEVEL", slog.LevelInfo)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
