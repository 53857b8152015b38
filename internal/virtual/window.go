// Package virtual は大きな行集合のうちビューポートに重なる行だけを描画するための計算を提供する。
// 計算はスクロール位置・ビューポート高さ・行数・行高さ・オーバースキャンの純粋関数。
package virtual

// Params はウィンドウ計算の入力。
type Params struct {
	ScrollOffset   int // ビューポート上端のスクロール位置（px）
	ViewportHeight int // ビューポートの高さ（px）
	RowHeight      int // 行の推定高さ（px）
	RowCount       int // 全行数
	Overscan       int // 表示範囲の前後に余分に描画する行数
}

// Window は描画する行の範囲。範囲はいずれも [Start, End) の半開区間。
type Window struct {
	Start        int // 描画する最初の行
	End          int // 描画する最後の行の次
	VisibleStart int // ビューポートに重なる最初の行
	VisibleEnd   int // ビューポートに重なる最後の行の次
	TotalHeight  int // 全行分の高さ（px）
}

// Len は描画する行数を返す。
func (w Window) Len() int {
	return w.End - w.Start
}

// Empty は描画する行がないかを返す。
func (w Window) Empty() bool {
	return w.End <= w.Start
}

// Item は描画する1行。Top はコンテナ上端からの位置（px）。
type Item struct {
	Index int
	Top   int
}

// Compute は描画する行の範囲を計算する。
// 表示行数は ceil(ViewportHeight/RowHeight)、描画行数はそれに前後のオーバースキャンを加えたもので、
// 先頭・末尾では範囲をずらして行数を保ち、全行数を上限とする。
// ビューポートまたは行高さが0以下の場合は空の範囲を返す。
func Compute(p Params) Window {
	if p.RowCount <= 0 || p.RowHeight <= 0 {
		return Window{}
	}

	total := p.RowCount * p.RowHeight
	if p.ViewportHeight <= 0 {
		return Window{TotalHeight: total}
	}

	overscan := p.Overscan
	if overscan < 0 {
		overscan = 0
	}

	offset := p.ScrollOffset
	if maxOffset := total - p.ViewportHeight; offset > maxOffset {
		offset = maxOffset
	}
	if offset < 0 {
		offset = 0
	}

	visibleCount := (p.ViewportHeight + p.RowHeight - 1) / p.RowHeight

	visibleStart := offset / p.RowHeight
	visibleEnd := visibleStart + visibleCount
	if visibleEnd > p.RowCount {
		visibleEnd = p.RowCount
		visibleStart = max(0, visibleEnd-visibleCount)
	}

	start := visibleStart - overscan
	end := visibleEnd + overscan
	if start < 0 {
		end -= start
		start = 0
	}
	if end > p.RowCount {
		start -= end - p.RowCount
		end = p.RowCount
	}
	if start < 0 {
		start = 0
	}

	return Window{
		Start:        start,
		End:          end,
		VisibleStart: visibleStart,
		VisibleEnd:   visibleEnd,
		TotalHeight:  total,
	}
}

// Items は範囲内の各行の位置を返す。
func Items(w Window, rowHeight int) []Item {
	if w.Empty() {
		return nil
	}
	items := make([]Item, 0, w.Len())
	for i := w.Start; i < w.End; i++ {
		items = append(items, Item{Index: i, Top: i * rowHeight})
	}
	return items
}

// AllItems は全行を順に並べた位置を返す。仮想化できない場合の描画に使う。
func AllItems(rowCount, rowHeight int) []Item {
	items := make([]Item, 0, max(rowCount, 0))
	for i := 0; i < rowCount; i++ {
		items = append(items, Item{Index: i, Top: i * rowHeight})
	}
	return items
}
