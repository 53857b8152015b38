package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hitoshi/markboard/internal/model"
	"github.com/hitoshi/markboard/internal/security"
	"github.com/hitoshi/markboard/internal/store"
)

// Backend はアップロードに使うバックエンドAPI。*api.Client が満たす。
type Backend interface {
	Upload(ctx context.Context, filename string, content io.Reader) (*model.UploadResult, error)
	SessionStatus(ctx context.Context) (*model.SessionStatus, error)
	ClearSession(ctx context.Context) error
}

// Invalidator はキャッシュ済みの取得結果を無効にする。*query.Cache が満たす。
type Invalidator interface {
	Invalidate()
}

// Recorder はアップロード結果のメトリクス記録インターフェース。
type Recorder interface {
	RecordUpload(outcome string)
}

// Result はアップロードの結果。
type Result struct {
	Upload  model.UploadResult
	Summary *Summary
}

// Service はアップロードとセッションの破棄を提供する。
type Service struct {
	backend   Backend
	sessions  *store.SessionStore
	cache     Invalidator
	sanitizer *security.TextSanitizer
	recorder  Recorder
	logger    *slog.Logger
}

// NewService はServiceを生成する。recorderはnil可。
func NewService(backend Backend, sessions *store.SessionStore, cache Invalidator, recorder Recorder, logger *slog.Logger) *Service {
	return &Service{
		backend:   backend,
		sessions:  sessions,
		cache:     cache,
		sanitizer: security.NewTextSanitizer(),
		recorder:  recorder,
		logger:    logger,
	}
}

// Upload は事前確認の後にファイルを送信し、セッション状態を取得して保持し、
// キャッシュ済みの取得結果をすべて無効にする。
// 途中で失敗した場合はセッションもキャッシュも変更しない。
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (*Result, error) {
	summary, err := Precheck(filename, data)
	if err != nil {
		s.record("rejected")
		return nil, err
	}

	resp, err := s.backend.Upload(ctx, filename, bytes.NewReader(data))
	if err != nil {
		s.record("failed")
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	status, err := s.backend.SessionStatus(ctx)
	if err != nil {
		s.record("failed")
		return nil, fmt.Errorf("failed to fetch session status: %w", err)
	}

	s.sessions.Set(resp.SessionID, status.ExpiresInSec)
	s.cache.Invalidate()
	s.record("success")

	result := &Result{Upload: *resp, Summary: summary}
	result.Upload.Validation.Errors = s.sanitizer.PlainTexts(resp.Validation.Errors)
	result.Upload.Validation.Warnings = s.sanitizer.PlainTexts(resp.Validation.Warnings)

	s.logger.Info("file uploaded",
		slog.String("filename", filename),
		slog.String("session_id", resp.SessionID),
		slog.Int("rows", summary.TotalRows()),
		slog.Int("validation_errors", len(result.Upload.Validation.Errors)),
		slog.Int("validation_warnings", len(result.Upload.Validation.Warnings)),
	)
	return result, nil
}

// Clear はバックエンドのセッションを破棄し、成功した場合のみ手元のセッションを破棄する。
func (s *Service) Clear(ctx context.Context) error {
	if err := s.backend.ClearSession(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.sessions.Clear()
	s.logger.Info("upload session cleared")
	return nil
}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordUpload(outcome)
	}
}
