package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveWith(t *testing.T, req *http.Request, mws ...gin.HandlerFunc) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mws...)
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveWith(t, httptest.NewRequest(http.MethodGet, "/ok", nil), SecurityHeaders(SecurityOptions{}))

	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %#v", h)
	}
	for _, k := range []string{"Permissions-Policy", "Strict-Transport-Security", "Cache-Control"} {
		if h.Get(k) != "" {
			t.Fatalf("unexpected %s: %q", k, h.Get(k))
		}
	}
	if got := h.Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
		t.Fatalf("expose = %q", got)
	}
}

func TestSecurityHeaders_ExposeMergesWithoutDuplicates(t *testing.T) {
	pre := func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "etag, Content-Length")
		c.Next()
	}
	h := serveWith(t, httptest.NewRequest(http.MethodGet, "/ok", nil),
		pre, SecurityHeaders(SecurityOptions{Expose: []string{"ETag", "Retry-After"}}))

	if got := h.Get("Access-Control-Expose-Headers"); got != "etag, Content-Length, X-Request-ID, Retry-After" {
		t.Fatalf("expose = %q", got)
	}
}

func TestSecurityHeaders_PolicyAndHSTS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour, EnablePolicy: true}

	tlsReq := httptest.NewRequest(http.MethodGet, "/ok", nil)
	tlsReq.TLS = &tls.ConnectionState{}
	h := serveWith(t, tlsReq, SecurityHeaders(opt))
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("missing policy headers: %#v", h)
	}
	if got := h.Get("Strict-Transport-Security"); got != "max-age=86400; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}

	proxied := httptest.NewRequest(http.MethodGet, "/ok", nil)
	proxied.Header.Set("X-Forwarded-Proto", "https")
	if got := serveWith(t, proxied, SecurityHeaders(SecurityOptions{EnableHSTS: true})).Get("Strict-Transport-Security"); !strings.HasPrefix(got, "max-age=15552000") {
		t.Fatalf("proxied HSTS = %q", got)
	}

	if got := serveWith(t, httptest.NewRequest(http.MethodGet, "/ok", nil), SecurityHeaders(opt)).Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("HSTS on plain HTTP: %q", got)
	}
}

func TestCacheControl_Policies(t *testing.T) {
	req := func() *http.Request { return httptest.NewRequest(http.MethodGet, "/ok", nil) }

	if h := serveWith(t, req(), CacheControl(CacheDefault)); h.Get("Cache-Control") != "" {
		t.Fatalf("default policy set Cache-Control=%q", h.Get("Cache-Control"))
	}

	h := serveWith(t, req(), CacheControl(CachePrivate))
	if h.Get("Cache-Control") != "private, no-cache" || h.Get("Vary") != "Authorization" {
		t.Fatalf("private: %#v", h)
	}

	h = serveWith(t, req(), CacheControl(CacheNoStore))
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("no-store: %#v", h)
	}

	// a route-level override wins over the group policy
	h = serveWith(t, req(), CacheControl(CachePrivate), CacheControl(CacheNoStore))
	if h.Get("Cache-Control") != "no-store" || h.Get("Vary") != "Authorization" {
		t.Fatalf("override: %#v", h)
	}
}

func Test_isHTTPS(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(plain) {
		t.Fatalf("plain HTTP should not be https")
	}
	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.TLS = &tls.ConnectionState{}
	if !isHTTPS(direct) {
		t.Fatalf("TLS request should be https")
	}
	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")
	if !isHTTPS(proxied) {
		t.Fatalf("X-Forwarded-Proto=HTTPS should be https")
	}
}
