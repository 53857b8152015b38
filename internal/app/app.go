package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/markboard/internal/config"
	"github.com/hitoshi/markboard/internal/handler"
	"github.com/hitoshi/markboard/internal/logger"
	"github.com/hitoshi/markboard/internal/metrics"
	"github.com/hitoshi/markboard/internal/middleware"
	"github.com/hitoshi/markboard/internal/workspace"
	"github.com/prometheus/client_golang/prometheus"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数と .env からConfigを読み込み、
// 設定されたログレベルでロガーを作り直す。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み中の警告を出力できるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルの反映
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。wはログの出力先で、exportのCSVは標準出力に書く。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	var exportOpts ExportOptions
	if cmd == CommandExport {
		opts, err := ParseExportArgs(args[1:])
		if err != nil {
			return err
		}
		exportOpts = opts
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	switch cmd {
	case CommandExport:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runExport(ctx, cfg, exportOpts, os.Stdout)
	default:
		return runServe(cfg)
	}
}

// Server はコンソールのHTTPハンドラーと、停止時に解放すべきバックグラウンド処理をまとめたもの。
type Server struct {
	Handler    http.Handler
	workspaces *workspace.Registry
}

// Close はすべてのワークスペースを破棄する。
func (s *Server) Close() {
	s.workspaces.Stop()
}

// NewServer は全依存関係をワイヤリングしたServerを生成する。
// メトリクスはregに登録し、/metrics で公開する。
func NewServer(cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (*Server, error) {
	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. ワークスペース
	registry := workspace.NewRegistry(workspace.RegistryConfig{
		Workspace: workspace.Config{
			API:              apiConfig(cfg),
			GCTime:           cfg.QueryGCTime,
			StaleTime:        cfg.QueryStaleTime,
			Debounce:         cfg.SearchDebounce,
			WarningThreshold: cfg.SessionWarningSec,
		},
		IdleTTL: cfg.WorkspaceIdleTTL,
	}, collector, log)

	// 3. 画面テンプレート
	renderer, err := handler.NewRenderer(log)
	if err != nil {
		registry.Stop()
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	// 4. ルーター
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitUpload))
	registry.OnRemove(limiter.Forget)
	router := handler.NewRouter(&handler.RouterDeps{
		Workspaces:    registry,
		RateLimiter:   limiter,
		Logger:        log,
		CookieSecure:  cfg.CookieSecure,
		BackendOrigin: cfg.APIBaseURL,
		Renderer:      renderer,
		Table: handler.TableConfig{
			RowHeight:      cfg.RowHeight,
			ViewportHeight: cfg.ViewportHeight,
			Overscan:       cfg.Overscan,
		},
		Metrics: metrics.Handler(reg),
	})

	return &Server{Handler: router, workspaces: registry}, nil
}

// runServe はコンソールサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	srv, err := NewServer(cfg, slog.Default(), prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer srv.Close()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second, // アップロードを考慮
		WriteTimeout:      cfg.APITimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("console server starting",
			slog.String("addr", server.Addr),
			slog.String("base_url", cfg.BaseURL),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down console server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("console server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
