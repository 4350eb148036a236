// Package handlers provides HTTP handler implementations for the public API.
//
// This file declares the service contracts consumed by the handlers, the
// Handlers wiring struct, and the small parsing helpers shared by all
// endpoints (numeric ids in paths and bodies, the room_mode binding tag).
//
// Handlers are transport-thin: they validate input, call application services
// with the authenticated actor, and translate results into HTTP responses.
package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/crystarise-backend/internal/auth"
	"github.com/tbourn/crystarise-backend/internal/domain"
	"github.com/tbourn/crystarise-backend/internal/ledger"
	"github.com/tbourn/crystarise-backend/internal/services"
	"github.com/tbourn/crystarise-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// RoomService defines room creation and membership operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RoomService interface {
	CreateSolo(ctx context.Context, a domain.Actor, in services.SoloInput) (*services.SoloRoom, error)
	CreateRoom(ctx context.Context, a domain.Actor, name string, mode ledger.Mode, password string) (*domain.Room, error)
	CreateGroupRoom(ctx context.Context, a domain.Actor, name, password string, g services.GoalInput) (*services.GroupRoom, error)
	Join(ctx context.Context, a domain.Actor, roomID int64, password string) (*services.JoinResult, error)
	Mine(ctx context.Context, a domain.Actor) ([]domain.MyRoom, error)
	Get(ctx context.Context, a domain.Actor, roomID int64) (*domain.Room, error)
	Members(ctx context.Context, a domain.Actor, roomID int64) ([]domain.Membership, error)
}

// CrystalService defines crystal, record and summary operations.
type CrystalService interface {
	Create(ctx context.Context, a domain.Actor, roomID int64, g services.GoalInput) (*domain.Crystal, error)
	GetByRoom(ctx context.Context, a domain.Actor, roomID int64) (*domain.Crystal, error)
	AddRecord(ctx context.Context, a domain.Actor, crystalID int64, in services.RecordInput) (int64, error)
	AddRecordByRoom(ctx context.Context, a domain.Actor, roomID int64, in services.RecordInput) (*services.RecordWithSummary, error)
	Summary(ctx context.Context, a domain.Actor, crystalID int64) (*ledger.Summary, error)
	SummaryByRoom(ctx context.Context, a domain.Actor, roomID int64) (*ledger.Summary, error)
	ListRecords(ctx context.Context, a domain.Actor, crystalID int64, limit int) ([]domain.Record, error)
	RecordsETag(ctx context.Context, a domain.Actor, crystalID int64, limit int) (string, error)
}

// ProfileService defines the caller's profile card operations.
type ProfileService interface {
	Get(ctx context.Context, a domain.Actor, id *auth.Identity) (*domain.Profile, error)
	Update(ctx context.Context, a domain.Actor, name, avatarURL *string) (*domain.Profile, error)
}

// AuthService defines sign-up and sign-in.
type AuthService interface {
	SignUp(ctx context.Context, email, password string) (*auth.Identity, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for rooms, crystals, profiles and auth.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	roomSvc    RoomService
	crystalSvc CrystalService
	profileSvc ProfileService
	authSvc    AuthService

	// RedactBackendErrors hides collaborator messages in 500 responses.
	RedactBackendErrors bool
}

// New constructs and returns a Handlers instance bound to the given services.
func New(rooms RoomService, crystals CrystalService, profiles ProfileService, accounts AuthService) *Handlers {
	RegisterValidators()
	return &Handlers{roomSvc: rooms, crystalSvc: crystals, profileSvc: profiles, authSvc: accounts}
}

// fail translates err with the handler's redaction setting.
func (h *Handlers) fail(c *gin.Context, err error) {
	respondError(c, err, h.RedactBackendErrors)
}

//
// Helpers
//

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags on gin's validator:
//   - room_mode: "solo" or "group"
//
// It is safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("room_mode", func(fl validator.FieldLevel) bool {
				return ledger.Mode(fl.Field().String()).Valid()
			})
		}
	})
}

// badBody answers a failed bind with 400. An amount that is not a decimal
// number is reported as such; anything else gets the endpoint's hint.
func badBody(c *gin.Context, err error, hint string) {
	if errors.Is(err, ledger.ErrSyntax) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, ledger.ErrSyntax.Error())
		return
	}
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, hint)
}

// pathID parses a positive numeric path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	return utils.ParseID(c.Param(name))
}

// flexID is a positive numeric id that clients may send as 12 or "12".
type flexID int64

// UnmarshalJSON accepts a JSON number or a numeric string.
func (f *flexID) UnmarshalJSON(b []byte) error {
	n, ok := utils.ParseID(string(bytes.Trim(bytes.TrimSpace(b), `"`)))
	if !ok {
		return domain.Invalid("id must be a positive integer")
	}
	*f = flexID(n)
	return nil
}
