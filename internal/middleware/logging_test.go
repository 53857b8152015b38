package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newLoggingHandler(buf *bytes.Buffer, inner http.HandlerFunc) http.Handler {
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return NewLoggingMiddleware(logger)(inner)
}

func decodeLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

// TestLoggingMiddleware_LogsRequestFields はリクエストログに必要なフィールドが含まれることを検証する。
func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	handler := newLoggingHandler(&buf, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/students", nil))

	entry := decodeLogEntry(t, &buf)
	if id := w.Header().Get("X-Request-ID"); id == "" || entry["request_id"] != id {
		t.Errorf("request_id = %v, X-Request-ID = %q", entry["request_id"], id)
	}
	if n, ok := entry["bytes"].(float64); !ok || n != 2 {
		t.Errorf("bytes = %v, want 2", entry["bytes"])
	}
	if entry["method"] != "GET" {
		t.Errorf("method = %v, want GET", entry["method"])
	}
	if entry["path"] != "/students" {
		t.Errorf("path = %v, want /students", entry["path"])
	}
	if status, ok := entry["status"].(float64); !ok || status != 200 {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected 'duration_ms' field in log entry")
	}
	if _, ok := entry["workspace_id"]; ok {
		t.Error("workspace_id should be omitted without workspace")
	}
}

// TestLoggingMiddleware_IncludesWorkspaceID はワークスペースIDがログに含まれることを検証する。
func TestLoggingMiddleware_IncludesWorkspaceID(t *testing.T) {
	ws := newTestWorkspace(t, "http://backend.invalid")

	var buf bytes.Buffer
	handler := newLoggingHandler(&buf, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler.ServeHTTP(httptest.NewRecorder(), requestWithWorkspace(http.MethodGet, "/", ws))

	entry := decodeLogEntry(t, &buf)
	if entry["workspace_id"] != ws.ID {
		t.Errorf("workspace_id = %v, want %s", entry["workspace_id"], ws.ID)
	}
}

// TestLoggingMiddleware_CapturesStatusAndLevel はステータスコードとログレベルを検証する。
func TestLoggingMiddleware_CapturesStatusAndLevel(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{status: http.StatusOK, wantLevel: "INFO"},
		{status: http.StatusNotFound, wantLevel: "WARN"},
		{status: http.StatusBadGateway, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			handler := newLoggingHandler(&buf, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			entry := decodeLogEntry(t, &buf)
			if status := entry["status"].(float64); int(status) != tt.status {
				t.Errorf("status = %v, want %d", status, tt.status)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
		})
	}
}

// TestLoggingMiddleware_RecordsRedirectLocation はリダイレクト先がログに含まれることを検証する。
func TestLoggingMiddleware_RecordsRedirectLocation(t *testing.T) {
	var buf bytes.Buffer
	handler := newLoggingHandler(&buf, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
	})

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/students", nil))

	entry := decodeLogEntry(t, &buf)
	if entry["location"] != LoginPath {
		t.Errorf("location = %v, want %s", entry["location"], LoginPath)
	}
}
