// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, the response hardening applied to every
// route, and CacheControl, the per-group caching posture. Ledger reads are
// per caller, so authenticated groups are marked private and revalidated by
// ETag; credential and profile routes are never stored.
//
// HSTS is opt-in and only applied when the request is actually HTTPS.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CachePolicy selects the Cache-Control posture of a route group.
type CachePolicy int

const (
	// CacheDefault leaves caching headers to the handler.
	CacheDefault CachePolicy = iota
	// CachePrivate allows the caller's own cache to keep the response but
	// forces revalidation, and keys it on the bearer token.
	CachePrivate
	// CacheNoStore forbids storing the response anywhere.
	CacheNoStore
)

// SecurityOptions configures SecurityHeaders.
//
// EnableHSTS emits Strict-Transport-Security for HTTPS requests (never for
// plain HTTP). Enable only when traffic is HTTPS end-to-end. HSTSMaxAge
// defaults to 180 days.
//
// EnablePolicy sends Permissions-Policy and X-Permitted-Cross-Domain-Policies.
//
// Expose lists response headers browser clients may read; X-Request-ID is
// always included.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	EnablePolicy bool
	Expose       []string
}

// SecurityHeaders returns a middleware that sets, on every response:
//
//	X-Content-Type-Options: nosniff
//	X-Frame-Options: DENY
//	Referrer-Policy: no-referrer
//
// plus the optional policy and HSTS headers, and merges Expose into
// Access-Control-Expose-Headers without duplicating entries already there.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"
	expose := append([]string{requestIDHeader}, opt.Expose...)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		mergeList(h, "Access-Control-Expose-Headers", expose)

		c.Next()
	}
}

// CacheControl applies p to every response of the group. A later
// CacheControl on the same route overrides an earlier one.
func CacheControl(p CachePolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		switch p {
		case CachePrivate:
			h.Set("Cache-Control", "private, no-cache")
			mergeList(h, "Vary", []string{"Authorization"})
		case CacheNoStore:
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		c.Next()
	}
}

// mergeList appends the names missing from the comma separated header key.
func mergeList(h http.Header, key string, names []string) {
	cur := h.Get(key)
	have := map[string]bool{}
	for _, v := range strings.Split(cur, ",") {
		if v = strings.TrimSpace(v); v != "" {
			have[strings.ToLower(v)] = true
		}
	}
	for _, n := range names {
		if have[strings.ToLower(n)] {
			continue
		}
		have[strings.ToLower(n)] = true
		if cur == "" {
			cur = n
		} else {
			cur += ", " + n
		}
	}
	if cur != "" {
		h.Set(key, cur)
	}
}

// isHTTPS reports whether the request used HTTPS directly or via a proxy
// that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
