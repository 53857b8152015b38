package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hitoshi/markboard/internal/api"
	"github.com/hitoshi/markboard/internal/auth"
	"github.com/hitoshi/markboard/internal/config"
	"github.com/hitoshi/markboard/internal/export"
	"github.com/hitoshi/markboard/internal/model"
)

// ErrMissingCredentials はexportに必要なログイン情報が環境変数にないことを示す。
var ErrMissingCredentials = errors.New("MARKBOARD_USERNAME and MARKBOARD_PASSWORD must be set")

// ExportOptions はexportサブコマンドの入力。
type ExportOptions struct {
	Filter   model.StudentFilter
	Out      string // 空または "-" の場合は標準出力
	Username string
	Password string
}

// ParseExportArgs はexportサブコマンドの引数を解析する。
// ログイン情報はMARKBOARD_USERNAMEとMARKBOARD_PASSWORDから読む。
func ParseExportArgs(args []string) (ExportOptions, error) {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts ExportOptions
	fs.StringVar(&opts.Filter.Class, "class", "", "class filter")
	fs.StringVar(&opts.Filter.Risk, "risk", "", "risk filter")
	fs.StringVar(&opts.Filter.Query, "q", "", "free-text search")
	fs.StringVar(&opts.Out, "out", "", "output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return ExportOptions{}, fmt.Errorf("invalid export arguments: %w", err)
	}

	opts.Username = os.Getenv("MARKBOARD_USERNAME")
	opts.Password = os.Getenv("MARKBOARD_PASSWORD")
	if opts.Username == "" || opts.Password == "" {
		return ExportOptions{}, ErrMissingCredentials
	}
	return opts, nil
}

// runExport はログインして生徒一覧を1回取得し、CSVとして書き出す。
func runExport(ctx context.Context, cfg *config.Config, opts ExportOptions, stdout io.Writer, apiOpts ...api.Option) error {
	creds := auth.Credentials{Email: opts.Username, Password: opts.Password}
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}

	client, err := api.NewClient(apiConfig(cfg), slog.Default(), apiOpts...)
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	if err := client.Login(ctx, api.LoginRequest{Email: creds.Email, Password: creds.Password}); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	defer func() {
		if err := client.Logout(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("backend logout failed", slog.String("error", err.Error()))
		}
	}()

	list, err := client.ListStudents(ctx, opts.Filter)
	if err != nil {
		return fmt.Errorf("failed to list students: %w", err)
	}

	out := stdout
	if opts.Out != "" && opts.Out != "-" {
		f, err := os.Create(opts.Out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.Out, err)
		}
		defer f.Close()
		out = f
	}

	if err := export.WriteStudentsCSV(out, list.Items); err != nil {
		return err
	}

	slog.Info("students exported",
		slog.Int("count", len(list.Items)),
		slog.String("out", opts.Out),
	)
	return nil
}

// apiConfig はバックエンドクライアントの設定をConfigから組み立てる。
func apiConfig(cfg *config.Config) api.Config {
	return api.Config{
		BaseURL:       cfg.APIBaseURL,
		AuthPrefix:    cfg.AuthPathPrefix,
		LoginEncoding: api.LoginEncoding(cfg.AuthLoginEncoding),
		Timeout:       cfg.APITimeout,
		RateLimit:     cfg.APIRateLimit,
	}
}
