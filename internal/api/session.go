package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/hitoshi/markboard/internal/model"
)

// Upload は成績表ファイルをmultipartの`file`フィールドで送信する。
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (*model.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var result model.UploadResult
	err = c.do(ctx, request{
		endpoint:    "upload",
		method:      http.MethodPost,
		path:        "/api/upload",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SessionStatus はアップロードセッションの残り時間を取得する。
func (c *Client) SessionStatus(ctx context.Context) (*model.SessionStatus, error) {
	var status model.SessionStatus
	err := c.do(ctx, request{
		endpoint: "session.status",
		method:   http.MethodGet,
		path:     "/api/session/status",
	}, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// ClearSession はアップロードセッションを破棄する。
func (c *Client) ClearSession(ctx context.Context) error {
	var resp okResponse
	return c.do(ctx, request{
		endpoint: "session.clear",
		method:   http.MethodPost,
		path:     "/api/session/clear",
	}, &resp)
}
