// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter with per-key
// buckets. The router installs two instances: scope "auth", keyed by client
// IP in front of sign-up and sign-in, and scope "api", keyed by user inside
// the authenticated API. Writes (record appends, room creation, joins) may be
// charged more than one token.
//
// The limiter is process-local. It is edge-level abuse control, not an
// authorization mechanism.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

var rateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter, by limiter scope.",
	},
	[]string{"scope"},
)

func init() {
	prometheus.MustRegister(rateLimited)
}

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP prefers the user id set by RequireAuth and falls back to
// the client IP. Keys are prefixed ("user:", "ip:") so the namespaces never
// collide.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if s := c.GetString(ctxKeyUserID); s != "" {
			return "user:" + s
		}
		return "ip:" + c.ClientIP()
	}
}

// KeyByIP always keys by client IP. Used in front of credential endpoints,
// where no user is known yet.
func KeyByIP() keyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter. Idle buckets are evicted
// after ttl, checked every gcEvery lookups. Safe for concurrent use.
type RateLimiter struct {
	scope string
	rps   rate.Limit
	burst int
	keyFn keyFunc

	// WriteCost is the number of tokens a non-GET/HEAD request takes,
	// capped at the burst size. Zero or one means writes cost like reads.
	WriteCost int

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	gcEvery  uint64
	lookups  uint64
}

// NewRateLimiter returns a limiter named scope (the metric label) refilling
// rps tokens per second into buckets of size burst (coerced to at least 1).
func NewRateLimiter(scope string, rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		scope:    scope,
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
		gcEvery:  5000,
	}
}

// getVisitor returns the bucket for key, creating it if absent. Eviction runs
// before the lookup so a stale bucket for key itself is replaced.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.lookups++; rl.lookups >= rl.gcEvery {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// cost is the number of tokens method takes.
func (rl *RateLimiter) cost(method string) int {
	if method == http.MethodGet || method == http.MethodHead || rl.WriteCost <= 1 {
		return 1
	}
	return min(rl.WriteCost, rl.burst)
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay of a completed append.
func IsRateBypass(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyRateBypass)
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit. Replays pass without taking tokens. Rejected
// requests get 429 with Retry-After and the standard error envelope:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 1
//	{"request_id": "<uuid>", "code": "too_many_requests", "message": "rate limit exceeded"}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		if rl.getVisitor(rl.keyFn(c)).AllowN(time.Now(), rl.cost(c.Request.Method)) {
			c.Next()
			return
		}

		rateLimited.WithLabelValues(rl.scope).Inc()
		c.Header("Retry-After", rl.retryAfter(rl.cost(c.Request.Method)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter is the number of whole seconds until n tokens refill, at least 1.
func (rl *RateLimiter) retryAfter(n int) string {
	if rl.rps <= 0 || math.IsInf(float64(rl.rps), 1) {
		return "1"
	}
	secs := int(math.Ceil(float64(n) / float64(rl.rps)))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
