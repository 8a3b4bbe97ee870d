package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// logLines decodes every JSON line written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		v, _ := c.Get(requestIDKey)
		c.String(http.StatusOK, asString(v))
	})

	cases := []struct {
		name, in string
		keep     bool
	}{
		{"missing", "", false},
		{"propagated", "abc-123_x.y", true},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
		{"log injection", "abc\",\"level\":\"error", false},
		{"spaces", "abc 123", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/rid", nil)
			if tc.in != "" {
				req.Header.Set("x-request-id", tc.in)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got == "" || got != w.Body.String() {
				t.Fatalf("header %q, context %q", got, w.Body.String())
			}
			if (got == tc.in) != tc.keep {
				t.Fatalf("inbound %q -> %q, keep=%v", tc.in, got, tc.keep)
			}
		})
	}
}

func TestLogger_LevelsAndFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.Use(func(c *gin.Context) { c.Set(CtxKeyUserID, "u1"); c.Next() })
	r.POST("/posts/:id/comments", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/posts/:id", func(c *gin.Context) { c.Status(http.StatusForbidden) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	req := httptest.NewRequest(http.MethodPost, "/posts/p1/comments", strings.NewReader(`{}`))
	req.Header.Set(HeaderIdempotencyKey, "retry-1")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/p1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	lines := logLines(t, buf)
	if len(lines) != 4 {
		t.Fatalf("want 4 access lines, got %d: %s", len(lines), buf.String())
	}
	want := []struct{ level, path string }{
		{"info", "/posts/:id/comments"},
		{"warn", "/posts/:id"},
		{"error", "/boom"},
		{"warn", "/nowhere"},
	}
	for i, w := range want {
		if lines[i]["level"] != w.level || lines[i]["path"] != w.path {
			t.Errorf("line %d: level=%v path=%v, want %s %s", i, lines[i]["level"], lines[i]["path"], w.level, w.path)
		}
		if lines[i]["request_id"] == "" || lines[i]["message"] != "request" {
			t.Errorf("line %d missing request fields: %v", i, lines[i])
		}
	}
	if lines[0]["user_id"] != "u1" || lines[0]["idempotency_key"] != "retry-1" {
		t.Fatalf("caller fields missing: %v", lines[0])
	}
	if _, ok := lines[1]["idempotency_key"]; ok {
		t.Fatalf("idempotency_key logged without header: %v", lines[1])
	}
}

func TestLogger_MasksAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws?access_token=eyJsecret&since=5", nil))

	if strings.Contains(buf.String(), "eyJsecret") {
		t.Fatalf("token leaked: %s", buf.String())
	}
	q, _ := logLines(t, buf)[0]["query"].(string)
	if !strings.Contains(q, "access_token=%5BREDACTED%5D") || !strings.Contains(q, "since=5") {
		t.Fatalf("query = %q", q)
	}
}

func TestLoggerFrom_RequestScoped(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.GET("/bare", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("fallback")
		c.Status(http.StatusOK)
	})
	r.GET("/scoped", RequestID(), Logger(), func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("from gin")
		log.Ctx(c.Request.Context()).Info().Msg("from context")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bare", nil))

	req := httptest.NewRequest(http.MethodGet, "/scoped", nil)
	req.Header.Set(requestIDHeader, "rid-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, buf)
	if len(lines) != 4 {
		t.Fatalf("want 4 lines, got %d: %s", len(lines), buf.String())
	}
	if _, ok := lines[0]["request_id"]; ok {
		t.Fatalf("fallback logger should carry no request fields: %v", lines[0])
	}
	for _, l := range lines[1:3] {
		if l["request_id"] != "rid-42" {
			t.Fatalf("scoped line without request id: %v", l)
		}
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/panic", func(*gin.Context) { panic("kaboom") })
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("after write")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(requestIDHeader, "rid-p")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-p" {
		t.Fatalf("body %v", body)
	}
	if !strings.Contains(buf.String(), "kaboom") || !strings.Contains(buf.String(), `"stack"`) {
		t.Fatalf("panic not logged: %s", buf.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if w.Body.String() != "partial" {
		t.Fatalf("late panic must not append JSON: %q", w.Body.String())
	}
}

func TestTruncate(t *testing.T) {
	if truncate("abc", 0) != "abc" || truncate("abc", 3) != "abc" || truncate("abcdef", 3) != "abc…" {
		t.Fatalf("truncate mismatch")
	}
	if asString(7) != "" || asString("x") != "x" {
		t.Fatalf("asString mismatch")
	}
}
