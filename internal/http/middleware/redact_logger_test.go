package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

// lastAccessLog returns the last "http_request" line from buf, decoded.
func lastAccessLog(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		var m map[string]any
		if json.Unmarshal([]byte(lines[i]), &m) == nil && m["message"] == "http_request" {
			return m
		}
	}
	t.Fatalf("no access log in:\n%s", buf.String())
	return nil
}

func TestRedactingLogger_MasksCredentialsAndScrubsPII(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header("X-Request-ID", "rid-resp"); c.Next() })
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{HeaderIdempotencyKey}}))
	r.GET("/crystals/by-room/:room_id/summary", func(c *gin.Context) {
		c.Set(ctxKeyUserID, "user-7")
		c.Status(http.StatusOK)
	})

	q := "access_token=eyJhbGciOi.abc&email=a.b+tag@example.com&phone=+1-555-123-4567&password=hunter2&limit=5"
	req := httptest.NewRequest(http.MethodGet, "/crystals/by-room/42/summary?"+q, nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Cookie", "sid=topsecret")
	req.Header.Set("apikey", "anon-key")
	req.Header.Set(HeaderIdempotencyKey, "ride-1")
	req.Header.Set("X-Client", "owner a@b.com id=123e4567-e89b-12d3-a456-426614174000")
	req.Header.Set("X-Request-ID", "rid-req")
	r.ServeHTTP(httptest.NewRecorder(), req)

	raw := buf.String()
	for _, secret := range []string{"secret", "topsecret", "anon-key", "ride-1", "hunter2", "eyJhbGciOi", "example.com"} {
		if strings.Contains(raw, secret) {
			t.Fatalf("log leaked %q: %s", secret, raw)
		}
	}

	m := lastAccessLog(t, buf)
	if m["level"] != "info" || m["path"] != "/crystals/by-room/:room_id/summary" || m["request_id"] != "rid-resp" {
		t.Fatalf("unexpected access fields: %v", m)
	}
	if m["user_id"] != "user-7" {
		t.Fatalf("user_id = %v", m["user_id"])
	}
	if params, _ := m["params"].(map[string]any); params["room_id"] != "42" {
		t.Fatalf("params = %v", m["params"])
	}
	query, _ := m["query"].(string)
	if !strings.Contains(query, "access_token=[REDACTED]") || !strings.Contains(query, "password=[REDACTED]") ||
		!strings.Contains(query, "[REDACTED:email]") || !strings.Contains(query, "[REDACTED:phone]") || !strings.Contains(query, "limit=5") {
		t.Fatalf("query = %q", query)
	}

	headers, _ := m["headers"].(map[string]any)
	for _, k := range []string{"Authorization", "Cookie", "Apikey", HeaderIdempotencyKey} {
		if headers[k] != "[REDACTED]" {
			t.Fatalf("%s not masked: %v", k, headers[k])
		}
	}
	if headers["X-Client"] != "owner [REDACTED:email] id=[REDACTED:id]" {
		t.Fatalf("X-Client = %v", headers["X-Client"])
	}
}

func TestRedactingLogger_LevelsByStatus_RequestIDFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/rooms/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/rooms/mine", func(c *gin.Context) {
		_ = c.Error(http.ErrHandlerTimeout)
		c.Status(http.StatusInternalServerError)
	})

	cases := []struct{ path, rid, level string }{
		{"/rooms/9", "rid-warn", "warn"},
		{"/rooms/mine", "rid-err", "error"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req.Header.Set("X-Request-ID", tc.rid)
		r.ServeHTTP(httptest.NewRecorder(), req)

		m := lastAccessLog(t, buf)
		if m["level"] != tc.level || m["request_id"] != tc.rid {
			t.Fatalf("%s: %v", tc.path, m)
		}
	}
	if m := lastAccessLog(t, buf); !strings.Contains(m["errors"].(string), "timeout") {
		t.Fatalf("collected gin errors not logged: %v", m)
	}
}

func Test_redactQuery(t *testing.T) {
	cases := map[string]string{
		"":                          "",
		"limit=10":                  "limit=10",
		"token=abc&limit=1":         "token=[REDACTED]&limit=1",
		"limit=1&Refresh_Token=x.y": "limit=1&Refresh_Token=[REDACTED]",
		"passport=ok":               "passport=ok",
	}
	for in, want := range cases {
		if got := redactQuery(in); got != want {
			t.Errorf("redactQuery(%q) = %q; want %q", in, got, want)
		}
	}
}
