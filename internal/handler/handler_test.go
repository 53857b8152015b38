package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hitoshi/markboard/internal/api"
	"github.com/hitoshi/markboard/internal/middleware"
	"github.com/hitoshi/markboard/internal/model"
	"github.com/hitoshi/markboard/internal/workspace"
)

const (
	testEmail    = "teacher@example.com"
	testPassword = "secret1"
)

// --- バックエンドのフェイク ---

// fakeBackend は成績バックエンドのフェイク。/api 以下はログイン中のみ応答する。
type fakeBackend struct {
	mu sync.Mutex

	loggedIn      bool
	students      []model.Student
	details       map[string]*model.StudentDetail
	report        model.ReportSummary
	studentsError int

	loginCalls     int
	meCalls        int
	studentsCalls  int
	uploadCalls    int
	studentsQuery  []url.Values
	labelRequests  []model.LabelRequest
	reportQuery    []url.Values
	downloadAccept []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		students: []model.Student{
			{ID: "s1", FullName: "Иванов Иван", Class: "7A", Average: 4.5, Risk: model.RiskA},
			{ID: "s2", FullName: "Петрова Анна", Class: "7B", Average: 3.25, Risk: model.RiskC},
		},
		details: map[string]*model.StudentDetail{
			"s1": {
				Student:    model.Student{ID: "s1", FullName: "Иванов Иван", Class: "7A", Average: 4.5, Risk: model.RiskA},
				Subjects:   []model.SubjectPerformance{{Name: "Математика", Average: 4.5, Marks: []float64{5, 4}}},
				Attendance: model.Attendance{TotalLessons: 40, Missed: 3, Late: 1},
				Trend:      []model.TrendPoint{{Date: "2025-09", Average: 4}, {Date: "2025-10", Average: 4.5}},
			},
		},
		report: model.ReportSummary{
			Totals:    model.ReportTotals{Students: 2, Risks: map[string]int{"A": 1, "C": 1}},
			BySubject: []model.SubjectAverage{{Subject: "Математика", Average: 3.876}},
		},
	}
}

// fakeStats はfakeBackendが受けた呼び出しの記録。
type fakeStats struct {
	loginCalls     int
	meCalls        int
	studentsCalls  int
	uploadCalls    int
	studentsQuery  []url.Values
	labelRequests  []model.LabelRequest
	reportQuery    []url.Values
	downloadAccept []string
}

func (b *fakeBackend) stats() fakeStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fakeStats{
		loginCalls:     b.loginCalls,
		meCalls:        b.meCalls,
		studentsCalls:  b.studentsCalls,
		uploadCalls:    b.uploadCalls,
		studentsQuery:  append([]url.Values(nil), b.studentsQuery...),
		labelRequests:  append([]model.LabelRequest(nil), b.labelRequests...),
		reportQuery:    append([]url.Values(nil), b.reportQuery...),
		downloadAccept: append([]string(nil), b.downloadAccept...),
	}
}

// update はロックを取ってfakeBackendの状態を変更する。
func (b *fakeBackend) update(f func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f(b)
}

func (b *fakeBackend) expire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loggedIn = false
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.loginCalls++
		if r.PostFormValue("username") != testEmail || r.PostFormValue("password") != testPassword {
			writeBackendJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect credentials"})
			return
		}
		b.loggedIn = true
		writeBackendJSON(w, http.StatusOK, map[string]string{"access_token": "opaque-token"})
	})
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		writeBackendJSON(w, http.StatusOK, model.AuthUser{Email: testEmail})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		b.expire()
		writeBackendJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.meCalls++
		if !b.loggedIn {
			writeBackendJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		writeBackendJSON(w, http.StatusOK, model.AuthUser{ID: "u1", Email: testEmail})
	})

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/session/status", func(w http.ResponseWriter, r *http.Request) {
		writeBackendJSON(w, http.StatusOK, model.SessionStatus{SessionID: "sess-1", ExpiresInSec: 1800})
	})
	apiMux.HandleFunc("POST /api/session/clear", func(w http.ResponseWriter, r *http.Request) {
		writeBackendJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	apiMux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.uploadCalls++
		b.mu.Unlock()
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "file is required", http.StatusBadRequest)
			return
		}
		writeBackendJSON(w, http.StatusOK, model.UploadResult{SessionID: "sess-1"})
	})
	apiMux.HandleFunc("GET /api/students", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.studentsCalls++
		b.studentsQuery = append(b.studentsQuery, r.URL.Query())
		if b.studentsError != 0 {
			http.Error(w, "boom", b.studentsError)
			return
		}
		var items []model.Student
		for _, s := range b.students {
			if c := r.URL.Query().Get("class"); c != "" && s.Class != c {
				continue
			}
			items = append(items, s)
		}
		writeBackendJSON(w, http.StatusOK, model.StudentList{Items: items, Total: len(items)})
	})
	apiMux.HandleFunc("GET /api/students/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		detail, ok := b.details[r.PathValue("id")]
		if !ok {
			writeBackendJSON(w, http.StatusNotFound, map[string]string{"detail": "Student not found"})
			return
		}
		writeBackendJSON(w, http.StatusOK, detail)
	})
	apiMux.HandleFunc("GET /api/reports/current", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.reportQuery = append(b.reportQuery, r.URL.Query())
		writeBackendJSON(w, http.StatusOK, b.report)
	})
	apiMux.HandleFunc("GET /api/reports/current.pdf", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.downloadAccept = append(b.downloadAccept, r.Header.Get("Accept"))
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4 report")
	})
	apiMux.HandleFunc("POST /api/labels/preview", func(w http.ResponseWriter, r *http.Request) {
		var req model.LabelRequest
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.labelRequests = append(b.labelRequests, req)
		b.mu.Unlock()
		writeBackendJSON(w, http.StatusOK, model.LabelPreview{Pages: []model.LabelPage{{URL: "/static/labels/p1.png"}, {URL: "/static/labels/p2.png"}}})
	})
	apiMux.HandleFunc("GET /api/labels/pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4 labels "+r.URL.Query().Get("class"))
	})

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		loggedIn := b.loggedIn
		b.mu.Unlock()
		if !loggedIn {
			writeBackendJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		apiMux.ServeHTTP(w, r)
	})
	return mux
}

func writeBackendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// --- コンソールのテストクライアント ---

// testConsole はコンソールとバックエンドを起動し、Cookieを保持するクライアントで操作する。
type testConsole struct {
	t             *testing.T
	backend       *fakeBackend
	backendServer *httptest.Server
	server        *httptest.Server
	client        *http.Client
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	rd, err := NewRenderer(discardLogger())
	if err != nil {
		t.Fatalf("NewRenderer がエラーを返した: %v", err)
	}
	return rd
}

func newTestConsole(t *testing.T) *testConsole {
	t.Helper()

	backend := newFakeBackend()
	backendServer := httptest.NewServer(backend.handler())
	t.Cleanup(backendServer.Close)

	logger := discardLogger()
	registry := workspace.NewRegistry(workspace.RegistryConfig{
		Workspace: workspace.Config{API: api.Config{BaseURL: backendServer.URL}},
	}, nil, logger)
	t.Cleanup(registry.Stop)

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	registry.OnRemove(limiter.Forget)

	router := NewRouter(&RouterDeps{
		Workspaces:    registry,
		RateLimiter:   limiter,
		Logger:        logger,
		BackendOrigin: backendServer.URL,
		Renderer:      newTestRenderer(t),
		Table:         TableConfig{RowHeight: 40, ViewportHeight: 400, Overscan: 2},
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New がエラーを返した: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testConsole{t: t, backend: backend, backendServer: backendServer, server: server, client: client}
}

func (c *testConsole) backendURL() string {
	return c.backendServer.URL
}

// do はリクエストを送信し、ステータス・ヘッダー・本文を返す。
func (c *testConsole) do(req *http.Request) (*http.Response, string) {
	c.t.Helper()
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s が失敗: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (c *testConsole) get(path string) (*http.Response, string) {
	c.t.Helper()
	req, _ := http.NewRequest(http.MethodGet, c.server.URL+path, nil)
	return c.do(req)
}

// csrfToken はCSRF Cookieの値を返す。まだ発行されていなければログイン画面を開いて取得する。
func (c *testConsole) csrfToken() string {
	c.t.Helper()
	u, _ := url.Parse(c.server.URL)
	for _, cookie := range c.client.Jar.Cookies(u) {
		if cookie.Name == "csrf_token" {
			return cookie.Value
		}
	}
	c.get(middleware.LoginPath)
	for _, cookie := range c.client.Jar.Cookies(u) {
		if cookie.Name == "csrf_token" {
			return cookie.Value
		}
	}
	c.t.Fatal("CSRFトークンが発行されていない")
	return ""
}

// postForm はフォームにCSRFトークンを含めて送信する。
func (c *testConsole) postForm(path string, form url.Values) (*http.Response, string) {
	c.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set(middleware.CSRFFieldName, c.csrfToken())
	req, _ := http.NewRequest(http.MethodPost, c.server.URL+path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// postFile はファイルをmultipartで送信する。CSRFトークンはヘッダーで渡す。
func (c *testConsole) postFile(path, filename string, data []byte) (*http.Response, string) {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		c.t.Fatalf("CreateFormFile がエラーを返した: %v", err)
	}
	part.Write(data)
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, c.server.URL+path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-CSRF-Token", c.csrfToken())
	return c.do(req)
}

// login はテスト用のアカウントでログインする。
func (c *testConsole) login() {
	c.t.Helper()
	resp, _ := c.postForm(middleware.LoginPath, url.Values{"email": {testEmail}, "password": {testPassword}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		c.t.Fatalf("ログインに失敗: status = %d, location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

// buildWorkbook はテスト用のxlsxを生成する。
func buildWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	f.SetCellValue(sheet, "A1", "ФИО")
	f.SetCellValue(sheet, "A2", "Иванов Иван")
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("ブックの書き出しに失敗: %v", err)
	}
	return buf.Bytes()
}

func assertRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if got := resp.Header.Get("Location"); got != location {
		t.Errorf("Location = %q, want %q", got, location)
	}
}

func assertContains(t *testing.T, body string, substrs ...string) {
	t.Helper()
	for _, s := range substrs {
		if !strings.Contains(body, s) {
			t.Errorf("本文に %q が含まれていない", s)
		}
	}
}

func containsAll(body string, substrs ...string) bool {
	for _, s := range substrs {
		if !strings.Contains(body, s) {
			return false
		}
	}
	return true
}
