// Profile HTTP handlers.
//
//   - GET    /me/profile   (profile card of the caller)
//   - PATCH  /me/profile   (update name and avatar)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/crystarise-backend/internal/http/middleware"
)

// UpdateProfileRequest is the JSON payload for updating the caller's
// profile. Omitted fields are left unchanged.
type UpdateProfileRequest struct {
	Name      *string `json:"name" binding:"omitempty,max=255" example:"Aki"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,max=2048" example:"https://example.com/a.png"`
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Get my profile
// @Description Display name, avatar, solo/team room counts and completed-crystal badges.
// @Tags        Profile
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.Profile
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /me/profile [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	p, err := h.profileSvc.Get(c.Request.Context(), middleware.ActorFrom(c), middleware.IdentityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Update my profile
// @Tags        Profile
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.UpdateProfileRequest  true  "Profile fields"
// @Success     200   {object}  domain.Profile
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500   {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /me/profile [patch]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Name == nil && req.AvatarURL == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name or avatar_url is required")
		return
	}
	p, err := h.profileSvc.Update(c.Request.Context(), middleware.ActorFrom(c), req.Name, req.AvatarURL)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}
