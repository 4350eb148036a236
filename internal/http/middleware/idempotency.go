// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for record appends. It
// validates the header, optionally performs a lookup to detect previously
// completed requests, and annotates the request context so downstream
// handlers can:
//   - read the normalized key (GetIdempotencyKey)
//   - see replayed requests (Idempotency-Replayed response header)
//   - bypass rate limiting when a replay is served (via an internal flag)
//
// Serving the replay itself is the job of the service layer, which stores
// the record id produced for each key.
package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key of
// a record append.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on responses to a replayed key.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

// defaultKeyPattern is an RFC 7230-like token plus common safe characters.
var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Scope derives the key scope from the request, e.g. "crystal:42".
	// An empty scope skips the lookup.
	Scope func(c *gin.Context) string
}

// IdempotencyLookup answers whether a still-valid result exists for
// (userID, scope, key). Errors are logged and treated as "no replay"; the
// service still resolves the key when it appends.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header (if present),
// stashes it in the Gin context, and checks for a prior completed request via
// lookup. When a replay is detected the rate limiter lets the request through.
//
// Behavior:
//   - Safe methods (GET, HEAD, OPTIONS) or header absent: no-op.
//   - Header fails validation: 400 with code "bad_idempotency_key".
//   - No authenticated user or empty scope: the key is stashed, no lookup.
//   - Replay found: Idempotency-Replayed: true is set on the response.
//
// Install it after RequireAuth so the user id is known.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || safeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		uid := c.GetString(ctxKeyUserID)
		if lookup != nil && opts.Scope != nil && uid != "" {
			if scope := opts.Scope(c); scope != "" {
				exists, err := lookup(c.Request.Context(), uid, scope, key)
				switch {
				case err != nil:
					LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency lookup failed")
				case exists:
					c.Set(ctxKeyRateBypass, true)
					c.Header(HeaderIdempotencyReplayed, "true")
				}
			}
		}

		c.Next()
	}
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}
