// Auth HTTP handlers.
//
//   - POST   /auth/signup
//   - POST   /auth/signin
//
// Both endpoints are public. Failures reported by the identity provider
// (duplicate address, bad credentials, unconfirmed email, weak password) are
// returned as 400 with code auth_failed; only an unreachable provider is a 500.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/crystarise-backend/internal/auth"
	"github.com/tbourn/crystarise-backend/internal/domain"
)

const (
	msgSignedUp = "User signed up successfully. Check your email for confirmation."
	msgSignedIn = "User signed in successfully."
)

// CredentialsRequest is the JSON payload of sign-up and sign-in.
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required" example:"aki@example.com"`
	Password string `json:"password" binding:"required" example:"correct horse"`
}

// SignUpResponse is returned after a successful sign-up.
type SignUpResponse struct {
	Message string         `json:"message"`
	User    *auth.Identity `json:"user"`
}

// SignInResponse is returned after a successful sign-in.
type SignInResponse struct {
	Message     string         `json:"message"`
	AccessToken string         `json:"access_token"`
	User        *auth.Identity `json:"user"`
}

// SignUp godoc
// @ID          signUp
// @Summary     Sign up
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Credentials"
// @Success     201   {object}  handlers.SignUpResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Rejected by the identity provider"
// @Failure     500   {object}  handlers.ErrorResponse  "Identity provider unavailable"
// @Router      /auth/signup [post]
func (h *Handlers) SignUp(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password are required")
		return
	}
	id, err := h.authSvc.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.failAuth(c, err)
		return
	}
	ok(c, http.StatusCreated, SignUpResponse{Message: msgSignedUp, User: id})
}

// SignIn godoc
// @ID          signIn
// @Summary     Sign in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Credentials"
// @Success     200   {object}  handlers.SignInResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Rejected by the identity provider"
// @Failure     500   {object}  handlers.ErrorResponse  "Identity provider unavailable"
// @Router      /auth/signin [post]
func (h *Handlers) SignIn(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password are required")
		return
	}
	s, err := h.authSvc.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.failAuth(c, err)
		return
	}
	ok(c, http.StatusOK, SignInResponse{Message: msgSignedIn, AccessToken: s.AccessToken, User: s.User})
}

func (h *Handlers) failAuth(c *gin.Context, err error) {
	if domain.KindOf(err) == domain.KindUnavailable {
		h.fail(c, err)
		return
	}
	fail(c, http.StatusBadRequest, ErrCodeAuthFailed, errorMessage(err))
}
