package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/markboard/internal/api"
	"github.com/hitoshi/markboard/internal/middleware"
	"github.com/hitoshi/markboard/internal/model"
	"github.com/hitoshi/markboard/internal/upload"
	"github.com/hitoshi/markboard/internal/workspace"
)

// multipartOverhead はファイル以外のフォーム項目に許す余裕。
const multipartOverhead = 1 << 20

// 事前確認で拒否したときのメッセージ。
var precheckMessages = map[error]string{
	upload.ErrNoFile:        "Выберите файл для загрузки",
	upload.ErrNotXLSX:       "Неверный формат файла",
	upload.ErrTooLarge:      "Файл слишком большой",
	upload.ErrUnreadable:    "Не удалось прочитать файл",
	upload.ErrEmptyWorkbook: "Файл не содержит данных",
}

// UploadView はアップロード画面の描画データ。
type UploadView struct {
	SessionActive bool
	Result        *upload.Result
	Error         *model.APIError
}

// UploadHandler は成績表アップロードのHTTPハンドラー。
type UploadHandler struct {
	render *Renderer
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(render *Renderer) *UploadHandler {
	return &UploadHandler{render: render}
}

// Page はアップロード画面を表示する。
// GET /upload
func (h *UploadHandler) Page(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	h.renderUpload(w, r, ws, http.StatusOK, UploadView{})
}

// Upload はファイルを受け取ってバックエンドへ送信する。
// POST /upload (multipart/form-data, field "file")
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	filename, data, err := readUploadedFile(w, r)
	if err == nil {
		var result *upload.Result
		result, err = ws.Uploads.Upload(r.Context(), filename, data)
		if err == nil {
			h.renderUpload(w, r, ws, http.StatusOK, UploadView{Result: result})
			return
		}
	}

	if reason, rejected := precheckMessage(err); rejected {
		h.renderUpload(w, r, ws, http.StatusUnprocessableEntity, UploadView{Error: model.NewInvalidFileError(reason)})
		return
	}
	if api.IsUnauthorized(err) {
		ws.MarkUnauthorized()
		http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
		return
	}

	ws.Logger().Warn("upload failed", slog.String("error", err.Error()))
	h.renderUpload(w, r, ws, http.StatusBadGateway, UploadView{Error: model.NewUploadFailedError()})
}

// Clear はアップロードセッションを破棄する。
// POST /upload/clear
func (h *UploadHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	if err := ws.Uploads.Clear(r.Context()); err != nil {
		h.render.BackendError(w, r, ws, err, model.NewUploadFailedError())
		return
	}
	http.Redirect(w, r, "/upload", http.StatusSeeOther)
}

func (h *UploadHandler) renderUpload(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, status int, view UploadView) {
	view.SessionActive = ws.Sessions.Get().Active
	h.render.Render(w, r, status, "upload", Page{Title: "Загрузка", Nav: "upload", Data: view})
}

// readUploadedFile はフォームのファイルを読み込む。上限を超える本文は読み込まない。
func readUploadedFile(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxFileSize+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return "", nil, upload.ErrTooLarge
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return "", nil, upload.ErrNoFile
		default:
			return "", nil, err
		}
	}
	defer file.Close()

	if header.Size > upload.MaxFileSize {
		return "", nil, upload.ErrTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, upload.MaxFileSize+1))
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}

func precheckMessage(err error) (string, bool) {
	for target, msg := range precheckMessages {
		if errors.Is(err, target) {
			return msg, true
		}
	}
	return "", false
}
