// Package chart は生徒カードの成績推移グラフをPNGで描画する。
package chart

import (
	"errors"
	"fmt"
	"io"

	gochart "github.com/wcharczuk/go-chart/v2"
)

// 既定の画像サイズ。
const (
	DefaultWidth  = 640
	DefaultHeight = 240
)

// minYMax はY軸上限の下限値。成績は5段階なので最低でも5まで表示する。
const minYMax = 5.0

// ErrNoData は描画する点がないことを示す。
var ErrNoData = errors.New("no trend points")

// Point はグラフの1点。
type Point struct {
	Label string
	Value float64
}

// YRange はY軸の範囲 [0, max(値..., 5)] を返す。
func YRange(points []Point) (float64, float64) {
	upper := minYMax
	for _, p := range points {
		if p.Value > upper {
			upper = p.Value
		}
	}
	return 0, upper
}

// RenderTrend は推移を折れ線グラフとしてPNGでwに書き出す。
// width, heightが0以下の場合は既定値を使う。
func RenderTrend(w io.Writer, points []Point, width, height int) error {
	if len(points) == 0 {
		return ErrNoData
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	xs := make([]float64, 0, len(points)+1)
	ys := make([]float64, 0, len(points)+1)
	ticks := make([]gochart.Tick, 0, len(points))
	for i, p := range points {
		xs = append(xs, float64(i))
		ys = append(ys, p.Value)
		ticks = append(ticks, gochart.Tick{Value: float64(i), Label: p.Label})
	}
	// 1点だけではX軸の範囲が定まらないため、同じ値の点を補う
	if len(points) == 1 {
		xs = append(xs, 1)
		ys = append(ys, points[0].Value)
	}

	yMin, yMax := YRange(points)
	ch := gochart.Chart{
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 14, Left: 16, Right: 12, Bottom: 28}},
		XAxis:      gochart.XAxis{Ticks: ticks},
		YAxis:      gochart.YAxis{Range: &gochart.ContinuousRange{Min: yMin, Max: yMax}},
		Series: []gochart.Series{
			gochart.ContinuousSeries{
				Name:    "avg",
				XValues: xs,
				YValues: ys,
				Style: gochart.Style{
					StrokeColor: gochart.ColorBlue,
					StrokeWidth: 2,
					DotColor:    gochart.ColorBlue,
					DotWidth:    3,
				},
			},
		},
	}

	if err := ch.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("failed to render trend chart: %w", err)
	}
	return nil
}
