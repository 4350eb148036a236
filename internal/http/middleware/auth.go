// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer authentication. RequireAuth rejects requests
// without a well-formed "Authorization: Bearer <token>" header before the
// identity provider is contacted, verifies the token, and publishes the
// acting identity to handlers through the Gin context:
//   - "userID":      the verified user id (also read by the rate limiter)
//   - "accessToken": the raw token, forwarded to the storage backend
//   - "identity":    the *auth.Identity with its metadata
//
// The request context also receives the request-scoped logger enriched with
// user_id, so services can log through zerolog.Ctx.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/crystarise-backend/internal/auth"
	"github.com/tbourn/crystarise-backend/internal/domain"
)

const (
	ctxKeyUserID   = "userID"
	ctxKeyToken    = "accessToken"
	ctxKeyIdentity = "identity"

	// msgInvalidCredentials is the message returned for every rejected token.
	msgInvalidCredentials = "Invalid authentication credentials"
)

// RequireAuth returns a middleware that authenticates the caller with v.
//
// Responses:
//   - 401 unauthorized: header missing, not a Bearer scheme, empty token, or
//     the provider rejected the token.
//   - 500 unavailable: the provider could not be reached.
func RequireAuth(v auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "missing or malformed bearer token")
			return
		}

		id, err := v.Verify(c.Request.Context(), token)
		if err != nil || id == nil || id.ID == "" {
			if errors.Is(err, domain.ErrUnavailable) {
				LoggerFrom(c).Error().Err(err).Msg("identity provider unavailable")
				abortAuth(c, http.StatusInternalServerError, "unavailable", "identity provider unavailable")
				return
			}
			abortAuth(c, http.StatusUnauthorized, "unauthorized", msgInvalidCredentials)
			return
		}

		c.Set(ctxKeyUserID, id.ID)
		c.Set(ctxKeyToken, token)
		c.Set(ctxKeyIdentity, id)

		lg := LoggerFrom(c).With().Str("user_id", id.ID).Logger()
		c.Set(ctxKeyLogger, &lg)
		c.Request = c.Request.WithContext(lg.WithContext(c.Request.Context()))

		c.Next()
	}
}

// ActorFrom returns the authenticated caller as a domain.Actor. The zero
// value is returned outside RequireAuth.
func ActorFrom(c *gin.Context) domain.Actor {
	return domain.Actor{UserID: c.GetString(ctxKeyUserID), Token: c.GetString(ctxKeyToken)}
}

// IdentityFrom returns the verified identity, or nil outside RequireAuth.
func IdentityFrom(c *gin.Context) *auth.Identity {
	if v, ok := c.Get(ctxKeyIdentity); ok {
		if id, ok := v.(*auth.Identity); ok {
			return id
		}
	}
	return nil
}

// bearerToken extracts the token of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func bearerToken(h string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(h), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortAuth(c *gin.Context, status int, code, msg string) {
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer realm="crystarise"`)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
