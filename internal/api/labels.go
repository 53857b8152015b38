package api

import (
	"context"
	"net/http"

	"github.com/hitoshi/markboard/internal/model"
)

// LabelPreview はラベルのプレビューページを生成する。
func (c *Client) LabelPreview(ctx context.Context, req model.LabelRequest) (*model.LabelPreview, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}

	var preview model.LabelPreview
	err = c.do(ctx, request{
		endpoint:    "labels.preview",
		method:      http.MethodPost,
		path:        "/api/labels/preview",
		body:        body,
		contentType: "application/json",
	}, &preview)
	if err != nil {
		return nil, err
	}
	for i := range preview.Pages {
		preview.Pages[i].URL = c.ResolveURL(preview.Pages[i].URL)
	}
	return &preview, nil
}
