package api

import (
	"context"
	"net/http"

	"github.com/hitoshi/markboard/internal/model"
)

// CurrentReport は現在の四半期レポートの集計を取得する。
func (c *Client) CurrentReport(ctx context.Context, f model.ReportFilter) (*model.ReportSummary, error) {
	var summary model.ReportSummary
	err := c.do(ctx, request{
		endpoint: "reports.current",
		method:   http.MethodGet,
		path:     withQuery("/api/reports/current", f.Values()),
	}, &summary)
	if err != nil {
		return nil, err
	}
	if summary.Totals.Risks == nil {
		summary.Totals.Risks = map[string]int{}
	}
	return &summary, nil
}
