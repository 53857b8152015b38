package model

import "fmt"

// APIError はコンソール画面に表示する統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, backend, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeLoadFailed      = "LOAD_FAILED"
	ErrCodeStudentNotFound = "STUDENT_NOT_FOUND"
	ErrCodeReportFailed    = "REPORT_FAILED"
	ErrCodeLabelFailed     = "LABEL_FAILED"
	ErrCodeUploadFailed    = "UPLOAD_FAILED"
	ErrCodeInvalidFile     = "INVALID_FILE"
	ErrCodeNothingToExport = "NOTHING_TO_EXPORT"
	ErrCodeInvalidFormat   = "INVALID_FORMAT"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewLoadFailedError はデータ取得失敗エラーを生成する。
func NewLoadFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoadFailed,
		Message:  "Не удалось загрузить данные",
		Category: "backend",
		Action:   "Обновите страницу или повторите попытку позже.",
	}
}

// NewStudentNotFoundError は生徒が見つからない場合のエラーを生成する。
func NewStudentNotFoundError(studentID string) *APIError {
	return &APIError{
		Code:     ErrCodeStudentNotFound,
		Message:  fmt.Sprintf("Ученик не найден: %s", studentID),
		Category: "backend",
		Action:   "Вернитесь к списку учеников.",
	}
}

// NewReportFailedError はレポート取得失敗エラーを生成する。
func NewReportFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeReportFailed,
		Message:  "Не удалось получить отчёт",
		Category: "backend",
		Action:   "Проверьте выбранный класс и четверть.",
	}
}

// NewLabelFailedError はラベルプレビュー生成失敗エラーを生成する。
func NewLabelFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLabelFailed,
		Message:  "Не удалось сформировать этикетки",
		Category: "backend",
		Action:   "Повторите попытку позже.",
	}
}

// NewUploadFailedError はアップロード失敗エラーを生成する。
func NewUploadFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  "Не удалось загрузить файл",
		Category: "backend",
		Action:   "Проверьте файл и повторите попытку.",
	}
}

// NewInvalidFileError はアップロード前の事前チェックで弾かれたファイルのエラーを生成する。
func NewInvalidFileError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFile,
		Message:  reason,
		Category: "validation",
		Action:   "Поддерживается формат Microsoft Excel 2007+ (.xlsx).",
	}
}

// NewNothingToExportError は出力対象の行がない場合のエラーを生成する。
func NewNothingToExportError() *APIError {
	return &APIError{
		Code:     ErrCodeNothingToExport,
		Message:  "Нет загруженных данных для экспорта",
		Category: "validation",
		Action:   "Откройте список учеников перед экспортом.",
	}
}

// NewInvalidFormatError は未対応のダウンロード形式のエラーを生成する。
func NewInvalidFormatError(format string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFormat,
		Message:  fmt.Sprintf("Неподдерживаемый формат: %s", format),
		Category: "validation",
		Action:   "Выберите PDF или XLSX.",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Что-то пошло не так",
		Category: "system",
		Action:   "Повторите попытку позже.",
	}
}

// NewRateLimitedError はリクエスト過多のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Слишком много запросов",
		Category: "system",
		Action:   "Подождите немного и повторите попытку.",
	}
}
