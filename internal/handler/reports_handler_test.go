package handler

import (
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

func TestReportsHandler_Report(t *testing.T) {
	c := newTestConsole(t)
	c.login()

	resp, body := c.get("/reports")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	assertContains(t, body,
		"Ученики: 2",
		"A: 1",
		"C: 1",
		"3.88",
		`href="/reports/download/pdf"`,
		`href="/reports/download/xlsx"`,
	)

	queries := c.backend.stats().reportQuery
	if len(queries) != 1 || queries[0].Encode() != "class=7A&quarter=1" {
		t.Errorf("report query = %v, want class=7A&quarter=1", queries)
	}
}

func TestDashboardHandler_UpdateSettings_ChangesReportFilter(t *testing.T) {
	c := newTestConsole(t)
	c.login()

	resp, _ := c.postForm("/settings", url.Values{
		"classroom": {"7B"},
		"quarter":   {"2"},
		"school":    {"School #9"}, // 選択肢にない値は無視する
	})
	assertRedirect(t, resp, "/settings")

	_, body := c.get("/settings")
	assertContains(t, body, `<option value="7B" selected>`, `<option value="School #1" selected>`, "Нет данных")

	c.get("/reports")
	queries := c.backend.stats().reportQuery
	if len(queries) != 1 || queries[0].Encode() != "class=7B&quarter=2" {
		t.Errorf("report query = %v, want class=7B&quarter=2", queries)
	}
}

func TestReportsHandler_Download(t *testing.T) {
	c := newTestConsole(t)
	c.login()

	resp, body := c.get("/reports/download/pdf")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q, want application/pdf", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, `filename="report.pdf"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if body != "%PDF-1.4 report" {
		t.Errorf("body = %q", body)
	}
	if accept := c.backend.stats().downloadAccept; len(accept) != 1 || accept[0] != "application/pdf" {
		t.Errorf("バックエンドへの Accept = %v, want [application/pdf]", accept)
	}
}

func TestReportsHandler_Download_UnknownFormat(t *testing.T) {
	c := newTestConsole(t)
	c.login()

	resp, body := c.get("/reports/download/docx")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	assertContains(t, body, "Неподдерживаемый формат: docx")
}

func TestLabelsHandler_Page_EmptyPreview(t *testing.T) {
	c := newTestConsole(t)
	c.login()

	_, body := c.get("/labels")
	assertContains(t, body, "Нет данных для предпросмотра", "Обновить предпросмотр", `value="all" checked`)
}

func TestLabelsHandler_Preview_Modes(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantIDs    []string
		wantFilter map[string]string
		wantBody   []string
	}{
		{
			name:     "全員",
			form:     url.Values{"mode": {"all"}},
			wantBody: []string{"Страница 1", "Страница 2"},
		},
		{
			name:     "選択",
			form:     url.Values{"mode": {"selected"}, "student_id": {"s2"}},
			wantIDs:  []string{"s2"},
			wantBody: []string{`value="s2" checked`, "Петрова Анна", "Страница 1"},
		},
		{
			name:       "クラス",
			form:       url.Values{"mode": {"filtered"}},
			wantFilter: map[string]string{"class": "7A"},
			wantBody:   []string{`value="filtered" checked`, "Страница 2"},
		},
		{
			name:     "未知のモードは全員",
			form:     url.Values{"mode": {"bogus"}},
			wantBody: []string{`value="all" checked`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConsole(t)
			c.login()

			resp, body := c.postForm("/labels/preview", tt.form)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
			}
			assertContains(t, body, tt.wantBody...)

			reqs := c.backend.stats().labelRequests
			if len(reqs) != 1 {
				t.Fatalf("label requests = %d, want 1", len(reqs))
			}
			if !reflect.DeepEqual(reqs[0].StudentIDs, tt.wantIDs) {
				t.Errorf("StudentIDs = %v, want %v", reqs[0].StudentIDs, tt.wantIDs)
			}
			if !reflect.DeepEqual(reqs[0].Filter, tt.wantFilter) {
				t.Errorf("Filter = %v, want %v", reqs[0].Filter, tt.wantFilter)
			}
		})
	}
}

func TestLabelsHandler_PDF_UsesSelectedClassroom(t *testing.T) {
	c := newTestConsole(t)
	c.login()

	resp, body := c.get("/labels/pdf")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if body != "%PDF-1.4 labels 7A" {
		t.Errorf("body = %q", body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "labels.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestRiskCounts_Order(t *testing.T) {
	got := riskCounts(map[string]int{"RISK2": 4, "Z": 1, "A": 2, "UNKNOWN": 3})
	want := []RiskCount{{"A", 2}, {"RISK2", 4}, {"UNKNOWN", 3}, {"Z", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("riskCounts = %v, want %v", got, want)
	}
}

func TestLabelMode(t *testing.T) {
	for in, want := range map[string]string{"": "all", "all": "all", "selected": "selected", "filtered": "filtered", "x": "all"} {
		if got := labelMode(in); got != want {
			t.Errorf("labelMode(%q) = %q, want %q", in, got, want)
		}
	}
}
