// Package upload は成績表ファイルのアップロードを提供する。
// 送信前に拡張子とブックの中身を確認し、明らかに不正なファイルはリクエストを発行せずに拒否する。
// 内容の検証はバックエンドが行う。
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MaxFileSize はアップロードを受け付けるファイルサイズの上限。
const MaxFileSize = 20 << 20

var (
	// ErrNoFile はファイルが選択されていないことを示す。
	ErrNoFile = errors.New("no file selected")
	// ErrNotXLSX は拡張子が .xlsx でないことを示す。
	ErrNotXLSX = errors.New("only xlsx files are supported")
	// ErrTooLarge はファイルサイズが上限を超えていることを示す。
	ErrTooLarge = errors.New("file is too large")
	// ErrUnreadable はブックとして開けないことを示す。
	ErrUnreadable = errors.New("file is not a readable workbook")
	// ErrEmptyWorkbook はデータを含むシートがないことを示す。
	ErrEmptyWorkbook = errors.New("workbook has no data")
)

// SheetInfo はシートの概要。
type SheetInfo struct {
	Name string
	Rows int // 空でない行の数
}

// Summary は事前確認の結果。
type Summary struct {
	Sheets []SheetInfo
}

// TotalRows は全シートの空でない行の合計を返す。
func (s *Summary) TotalRows() int {
	total := 0
	for _, sh := range s.Sheets {
		total += sh.Rows
	}
	return total
}

// Precheck はファイル名と内容を確認する。
func Precheck(filename string, data []byte) (*Summary, error) {
	if filename == "" || len(data) == 0 {
		return nil, ErrNoFile
	}
	if !strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return nil, ErrNotXLSX
	}
	if len(data) > MaxFileSize {
		return nil, ErrTooLarge
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer func() { _ = f.Close() }()

	summary := &Summary{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q: %v", ErrUnreadable, name, err)
		}
		summary.Sheets = append(summary.Sheets, SheetInfo{Name: name, Rows: countNonEmpty(rows)})
	}

	if summary.TotalRows() == 0 {
		return nil, ErrEmptyWorkbook
	}
	return summary, nil
}

func countNonEmpty(rows [][]string) int {
	n := 0
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				n++
				break
			}
		}
	}
	return n
}
