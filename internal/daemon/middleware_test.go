package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

// captureLogs routes the default logger into a JSON buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &entry); err != nil {
		t.Fatalf("decode log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"set", context.WithValue(context.Background(), requestIDKey{}, "abc-123"), "abc-123"},
		{"missing", context.Background(), ""},
		{"wrong type", context.WithValue(context.Background(), requestIDKey{}, 12345), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequestID(tt.ctx); got != tt.want {
				t.Errorf("RequestID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"generated", ""},
		{"propagated", "member-app-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := withRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = RequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			switch {
			case tt.incoming != "" && captured != tt.incoming:
				t.Errorf("captured ID = %q, want %q", captured, tt.incoming)
			case tt.incoming == "":
				if _, err := uuid.Parse(captured); err != nil {
					t.Errorf("generated ID %q is not a UUID: %v", captured, err)
				}
			}
			if got := rec.Header().Get(RequestIDHeader); got != captured {
				t.Errorf("response header = %q, want %q", got, captured)
			}
		})
	}
}

func TestWithAccessLog_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "DEBUG"},
		{http.StatusCreated, "DEBUG"},
		{http.StatusNotFound, "WARN"},
		{http.StatusConflict, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			buf := captureLogs(t)
			handler := withAccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/onboarding", nil))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			entry := lastEntry(t, buf)
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
			if entry["path"] != "/v1/onboarding" || entry["status"] != float64(tt.status) {
				t.Errorf("entry = %v", entry)
			}
		})
	}
}

func TestWithAccessLog_SessionRoute(t *testing.T) {
	buf := captureLogs(t)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/onboarding/{id}/skip", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("skipped"))
	})

	rec := httptest.NewRecorder()
	withAccessLog(mux).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/onboarding/abc/skip", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "skipped" {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
	entry := lastEntry(t, buf)
	if entry["session_id"] != "abc" {
		t.Errorf("session_id = %v, want abc", entry["session_id"])
	}
	if entry["route"] != "POST /v1/onboarding/{id}/skip" {
		t.Errorf("route = %v", entry["route"])
	}
}

func TestWithRecovery(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{"no panic", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }, http.StatusOK},
		{"panic", func(w http.ResponseWriter, r *http.Request) { panic("boom") }, http.StatusInternalServerError},
		// panic(nil) is a runtime.PanicNilError since Go 1.21
		{"nil panic", func(w http.ResponseWriter, r *http.Request) { panic(nil) }, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captureLogs(t)
			rec := httptest.NewRecorder()
			withRecovery(tt.handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusInternalServerError {
				var body map[string]any
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				if body["error"] != "internal server error" {
					t.Errorf("body = %v", body)
				}
			}
		})
	}
}

func TestChain_PanicKeepsRequestID(t *testing.T) {
	buf := captureLogs(t)
	var captured string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestID(r.Context())
		panic("simulated panic")
	})
	handler := chain(inner, withRequestID, withRecovery, withAccessLog)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/onboarding/x", nil))

	if captured == "" {
		t.Fatal("request ID should be set before the panic")
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) != captured {
		t.Error("response should carry the request ID")
	}
	if !bytes.Contains(buf.Bytes(), []byte(captured)) {
		t.Error("panic log should include the request ID")
	}
}

func TestLogRequestError(t *testing.T) {
	buf := captureLogs(t)
	ctx := context.WithValue(context.Background(), requestIDKey{}, "req-7")

	logRequestError(ctx, "archive query failed", context.DeadlineExceeded)

	entry := lastEntry(t, buf)
	if entry["level"] != "WARN" || entry["request_id"] != "req-7" {
		t.Errorf("entry = %v", entry)
	}
}
