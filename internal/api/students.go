package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hitoshi/markboard/internal/model"
)

// withQuery はパスにクエリ文字列を付与する。パラメータがない場合はパスのみを返す。
func withQuery(path string, v url.Values) string {
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}

// ListStudents はフィルタ条件に一致する生徒一覧を取得する。
func (c *Client) ListStudents(ctx context.Context, f model.StudentFilter) (*model.StudentList, error) {
	var list model.StudentList
	err := c.do(ctx, request{
		endpoint: "students.list",
		method:   http.MethodGet,
		path:     withQuery("/api/students", f.Values()),
	}, &list)
	if err != nil {
		return nil, err
	}
	if list.Items == nil {
		list.Items = []model.Student{}
	}
	return &list, nil
}

// GetStudent は生徒の詳細を取得する。
func (c *Client) GetStudent(ctx context.Context, id string) (*model.StudentDetail, error) {
	var detail model.StudentDetail
	err := c.do(ctx, request{
		endpoint: "students.get",
		method:   http.MethodGet,
		path:     "/api/students/" + url.PathEscape(id),
	}, &detail)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}
