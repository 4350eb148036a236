package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Labels(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics("/metrics"))
	r.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, "# scrape") })
	r.POST("/crystals/:id/records", func(c *gin.Context) {
		if c.GetHeader(HeaderIdempotencyKey) == "seen" {
			c.Header(HeaderIdempotencyReplayed, "true")
		}
		c.JSON(http.StatusCreated, gin.H{"value": "1"})
	})
	r.DELETE("/rooms/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	counter := func(method, path, status, replayed string) float64 {
		return testutil.ToFloat64(httpReqs.WithLabelValues(method, path, status, replayed))
	}
	cases := []struct {
		name, method, url, idemKey string
		labels                     [4]string
		want                       float64
	}{
		{"first write", http.MethodPost, "/crystals/7/records", "", [4]string{"POST", "/crystals/:id/records", "201", "false"}, 1},
		{"replayed write", http.MethodPost, "/crystals/8/records", "seen", [4]string{"POST", "/crystals/:id/records", "201", "true"}, 1},
		{"bodiless", http.MethodDelete, "/rooms/3", "", [4]string{"DELETE", "/rooms/:id", "204", "false"}, 1},
		{"no route", http.MethodGet, "/rooms/3/secret", "", [4]string{"GET", unmatchedPath, "404", "false"}, 1},
		{"scrape skipped", http.MethodGet, "/metrics", "", [4]string{"GET", "/metrics", "200", "false"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := tc.labels
			before := counter(l[0], l[1], l[2], l[3])

			req := httptest.NewRequest(tc.method, tc.url, nil)
			if tc.idemKey != "" {
				req.Header.Set(HeaderIdempotencyKey, tc.idemKey)
			}
			r.ServeHTTP(httptest.NewRecorder(), req)

			if got := counter(l[0], l[1], l[2], l[3]) - before; got != tc.want {
				t.Fatalf("http_requests_total%v delta = %v, want %v", l, got, tc.want)
			}
		})
	}

	if v := testutil.ToFloat64(httpInflight); v != 0 {
		t.Fatalf("inflight = %v after all requests finished", v)
	}
}
