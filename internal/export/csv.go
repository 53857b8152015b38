// Package export は生徒一覧のCSV書き出しと、バックエンドが生成するファイルのURL組み立てを提供する。
// CSVは読み込み済みの行だけから同期的に生成し、通信は行わない。
// PDF/XLSXの描画はすべてバックエンドに任せる。
package export

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hitoshi/markboard/internal/model"
)

// FileName はCSVのダウンロード時のファイル名。
const FileName = "students.csv"

// ContentType はCSVのContent-Type。
const ContentType = "text/csv; charset=utf-8"

// header はCSVの見出し行。
var header = []string{"ID", "ФИО", "Класс", "Средний балл", "Риск"}

// WriteStudentsCSV は生徒一覧をCSVとして書き出す。
// 見出しを含むすべてのフィールドをダブルクォートで囲み、行は改行1文字で区切る。末尾に改行は付けない。
func WriteStudentsCSV(w io.Writer, students []model.Student) error {
	lines := make([]string, 0, len(students)+1)
	lines = append(lines, quoteRow(header))
	for _, s := range students {
		lines = append(lines, quoteRow([]string{
			s.ID,
			s.FullName,
			s.Class,
			strconv.FormatFloat(s.Average, 'f', -1, 64),
			string(s.Risk),
		}))
	}

	if _, err := io.WriteString(w, strings.Join(lines, "\n")); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// StudentsCSV は生徒一覧のCSVをバイト列で返す。
func StudentsCSV(students []model.Student) []byte {
	var buf bytes.Buffer
	// bytes.Buffer への書き込みは失敗しない
	_ = WriteStudentsCSV(&buf, students)
	return buf.Bytes()
}

// ContentDisposition はCSVをダウンロードさせるためのヘッダー値を返す。
func ContentDisposition() string {
	return `attachment; filename="` + FileName + `"`
}

func quoteRow(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ",")
}
