// Package api は成績管理バックエンドのRESTクライアントを提供する。
// 相対パスの解決、Cookieの送信、JSONのエンコード/デコード、
// 2xx以外のレスポンスの統一エラーへの正規化を担う。
// リトライは一切行わない。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/markboard/internal/security"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL はAPI_BASE_URL未設定時に使用するバックエンドのオリジン。
	DefaultBaseURL = "http://localhost:8000"
	// maxErrorBodySize はエラーレスポンス本文の読み取り上限。
	maxErrorBodySize = 64 * 1024
	// userAgent はバックエンドへ送るUser-Agent。
	userAgent = "Markboard/1.0 Console"
)

// LoginEncoding はログインリクエストの送信形式。
type LoginEncoding string

const (
	// LoginEncodingForm はusername/passwordをフォーム形式で送り、access_tokenを受け取る。
	LoginEncodingForm LoginEncoding = "form"
	// LoginEncodingJSON はemail/passwordをJSONで送り、{ok:true}を受け取る。
	LoginEncodingJSON LoginEncoding = "json"
)

// Recorder はバックエンド呼び出しのメトリクス記録インターフェース。
type Recorder interface {
	RecordBackendRequest(endpoint string, statusCode int, duration time.Duration)
}

// Config はClientの設定。
type Config struct {
	BaseURL       string
	AuthPrefix    string        // "/auth" または "/api/auth"
	LoginEncoding LoginEncoding // ログインの送信形式
	Timeout       time.Duration // 1リクエストあたりのタイムアウト
	RateLimit     float64       // 送信レート（req/sec）。0以下は無制限
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithHTTPClient は内部で使用するhttp.Clientを差し替える。
// Cookie Jarが未設定の場合はClient専用のJarを設定したコピーを使う。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		copied := *hc
		if copied.Jar == nil {
			copied.Jar = c.httpClient.Jar
		}
		c.httpClient = &copied
	}
}

// WithRecorder はメトリクスの記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// Client はバックエンドAPIのクライアント。
// Cookie Jarをクライアントごとに持つため、ワークスペース単位で生成する。
type Client struct {
	httpClient    *http.Client
	logger        *slog.Logger
	baseURL       string
	authPrefix    string
	loginEncoding LoginEncoding
	limiter       *rate.Limiter
	sanitizer     *security.TextSanitizer
	recorder      Recorder

	mu       sync.RWMutex
	token    string
	tokenExp time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	authPrefix := "/" + strings.Trim(cfg.AuthPrefix, "/")
	if authPrefix == "/" {
		authPrefix = "/auth"
	}

	encoding := cfg.LoginEncoding
	if encoding != LoginEncodingJSON {
		encoding = LoginEncodingForm
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		logger:        logger,
		baseURL:       baseURL,
		authPrefix:    authPrefix,
		loginEncoding: encoding,
		sanitizer:     security.NewTextSanitizer(),
	}

	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit * 2)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL は解決済みのバックエンドオリジンを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResolveURL は相対パスをバックエンドのオリジンに対して解決する。
// http(s)で始まる絶対URLはそのまま返す。
func (c *Client) ResolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// request は1回のバックエンド呼び出しの内容。
type request struct {
	endpoint    string // メトリクス・ログ用の論理名（例: students.list）
	method      string
	path        string
	body        io.Reader
	contentType string
	accept      string // 空の場合はapplication/json
}

// jsonBody は値をJSONにエンコードしたリクエストボディを返す。
func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

// Download はpathのファイルを取得し、本文を読み出すReadCloserを返す。
// Acceptにはacceptを設定する。呼び出し元は本文を読み終えたらCloseする。
func (c *Client) Download(ctx context.Context, path, accept string) (io.ReadCloser, error) {
	resp, err := c.send(ctx, request{endpoint: "download", method: http.MethodGet, path: path, accept: accept})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// do はリクエストを送信し、2xxの場合はoutにレスポンスをデコードする。
// outがnilの場合は本文を読み捨てる。
func (c *Client) do(ctx context.Context, req request, out any) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeBody(resp, out)
}

// send はリクエストを送信する。2xx以外はレスポンスを閉じて統一エラーを返す。
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindTransport, Message: "request rate limit wait aborted", Err: err}
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.ResolveURL(req.path), req.body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	accept := req.accept
	if accept == "" {
		accept = "application/json"
	}
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("X-Request-ID", uuid.New().String())
	if req.body != nil && req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if token := c.bearerToken(time.Now()); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		c.record(req.endpoint, 0, duration)
		c.logger.Error("backend request failed",
			slog.String("endpoint", req.endpoint),
			slog.String("method", req.method),
			slog.String("path", req.path),
			slog.String("error", err.Error()),
		)
		return nil, &Error{Kind: KindTransport, Message: err.Error(), Err: err}
	}

	c.record(req.endpoint, resp.StatusCode, duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := c.statusError(resp)
		level := slog.LevelError
		if apiErr.Kind == KindUnauthorized || resp.StatusCode < 500 {
			level = slog.LevelWarn
		}
		c.logger.Log(ctx, level, "backend returned error status",
			slog.String("endpoint", req.endpoint),
			slog.String("method", req.method),
			slog.String("path", req.path),
			slog.Int("status", resp.StatusCode),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		return nil, apiErr
	}

	c.logger.Info("backend request",
		slog.String("endpoint", req.endpoint),
		slog.String("method", req.method),
		slog.String("path", req.path),
		slog.Int("status", resp.StatusCode),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return resp, nil
}

// decodeBody はレスポンス本文をoutの型に応じて読み取る。
func decodeBody(resp *http.Response, out any) error {
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return &Error{
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected content type %q", resp.Header.Get("Content-Type")),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError は2xx以外のレスポンスを統一エラーに変換する。
// メッセージはレスポンス本文をプレーンテキスト化したもの。空の場合はステータステキストを使う。
func (c *Client) statusError(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	message := c.sanitizer.PlainText(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	kind := KindStatus
	if resp.StatusCode == http.StatusUnauthorized {
		kind = KindUnauthorized
	}

	return &Error{
		Kind:       kind,
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

// record はメトリクスの記録先が設定されている場合に記録する。
func (c *Client) record(endpoint string, statusCode int, duration time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordBackendRequest(endpoint, statusCode, duration)
	}
}
