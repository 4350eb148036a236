// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package) and the translation of classified
// service errors into those responses (`respondError`).
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Every error kind maps to exactly one status and code:
//     unauthorized → 401, not_found → 404, conflict → 409, invalid → 400,
//     unavailable → 500.
//   - Absent and invisible resources are both reported as not_found.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "crystal already exists for this room"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/crystarise-backend/internal/domain"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnavailable  = "unavailable"

	// Domain-specific:
	ErrCodeAuthFailed       = "auth_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// msgBackendUnavailable replaces collaborator messages when redaction is on.
const msgBackendUnavailable = "backend unavailable"

// respondError translates a classified error into the error envelope.
// Unclassified errors count as unavailable. When redact is set, the
// collaborator's own message is not echoed for unavailable errors.
func respondError(c *gin.Context, err error, redact bool) {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind != domain.KindUnavailable {
		msg = errorMessage(err)
	}

	switch kind {
	case domain.KindUnauthorized:
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, msg)
	case domain.KindNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, msg)
	case domain.KindConflict:
		fail(c, http.StatusConflict, ErrCodeConflict, msg)
	case domain.KindInvalid:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msg)
	default:
		_ = c.Error(err)
		if redact {
			msg = msgBackendUnavailable
		}
		fail(c, http.StatusInternalServerError, ErrCodeUnavailable, msg)
	}
}

// errorMessage returns the client-facing message of a classified error,
// without its cause.
func errorMessage(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
