// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the Prometheus HTTP instrumentation. Labels stay bounded:
// path is the registered route template (or "unmatched"), status is the
// numeric code and replayed tells idempotent retries apart from first writes.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedPath = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route, status and idempotent replay.",
	}, []string{"method", "path", "status", "replayed"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_inflight",
		Help: "Requests currently being served.",
	})

	// Record pages are the largest payloads; a full page of 500 rows is ~60KiB.
	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "Response body size by method and route.",
		Buckets: prometheus.ExponentialBuckets(128, 4, 7),
	}, []string{"method", "path"})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize)
}

// Metrics instruments every request except those whose URL path is listed
// in skip (usually the scrape endpoint itself). Bodiless responses are not
// observed in the size histogram.
func Metrics(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(c *gin.Context) {
		if skipped[c.Request.URL.Path] {
			c.Next()
			return
		}

		httpInflight.Inc()
		start := time.Now()
		defer func() {
			httpInflight.Dec()
			observe(c, time.Since(start))
		}()
		c.Next()
	}
}

func observe(c *gin.Context, took time.Duration) {
	path := c.FullPath()
	if path == "" {
		path = unmatchedPath
	}
	method := c.Request.Method
	replayed := strconv.FormatBool(c.Writer.Header().Get(HeaderIdempotencyReplayed) == "true")

	httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status()), replayed).Inc()
	httpLat.WithLabelValues(method, path).Observe(took.Seconds())
	if n := c.Writer.Size(); n >= 0 {
		httpRespSize.WithLabelValues(method, path).Observe(float64(n))
	}
}
