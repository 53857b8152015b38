package virtual

// Column は表の1列の定義。
type Column[T any] struct {
	Header   string
	Accessor func(row T) string
	// Link が設定されている場合、セルは遷移用のリンクとして描画される。
	// リンクのセルは行の選択には関与しない。
	Link func(row T) string
}

// Cell は描画済みのセル。
type Cell struct {
	Text string
	Href string
}

// Row は描画済みの行。
type Row struct {
	Index int
	Key   string
	Top   int
	Cells []Cell
}

// Rendered は表の描画結果。Empty の場合は表の代わりに空状態を表示する。
type Rendered struct {
	Empty       bool
	Headers     []string
	Rows        []Row
	RowHeight   int
	TotalHeight int
	Virtualized bool
}

// Table は仮想化された表。
type Table[T any] struct {
	Columns        []Column[T]
	RowKey         func(row T) string
	RowHeight      int
	ViewportHeight int
	Overscan       int
}

// Render はスクロール位置に応じて描画する行を決め、セルを組み立てる。
// 描画範囲が得られない場合は全行を連番の位置で描画する。
func (t Table[T]) Render(rows []T, scrollOffset int) Rendered {
	headers := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		headers[i] = col.Header
	}

	out := Rendered{
		Headers:   headers,
		RowHeight: t.RowHeight,
	}
	if len(rows) == 0 {
		out.Empty = true
		return out
	}

	w := Compute(Params{
		ScrollOffset:   scrollOffset,
		ViewportHeight: t.ViewportHeight,
		RowHeight:      t.RowHeight,
		RowCount:       len(rows),
		Overscan:       t.Overscan,
	})

	items := Items(w, t.RowHeight)
	out.Virtualized = len(items) > 0
	if !out.Virtualized {
		items = AllItems(len(rows), t.RowHeight)
	}
	out.TotalHeight = len(rows) * t.RowHeight

	out.Rows = make([]Row, 0, len(items))
	for _, item := range items {
		row := rows[item.Index]
		r := Row{
			Index: item.Index,
			Top:   item.Top,
			Cells: make([]Cell, len(t.Columns)),
		}
		if t.RowKey != nil {
			r.Key = t.RowKey(row)
		}
		for i, col := range t.Columns {
			cell := Cell{}
			if col.Accessor != nil {
				cell.Text = col.Accessor(row)
			}
			if col.Link != nil {
				cell.Href = col.Link(row)
			}
			r.Cells[i] = cell
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}
