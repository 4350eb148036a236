// Package services – RoomService
//
// This file implements the RoomService, which manages room creation and the
// membership lifecycle. Solo rooms are created together with their crystal
// and host membership in one storage call; group rooms may be created bare or
// with a crystal. Joining applies the admission rules of the ledger package
// (password, then solo capacity, then idempotency) before any write.
//
// Room passwords are hashed with bcrypt before they reach storage, including
// the value handed to the solo-room procedure.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/crystarise-backend/internal/domain"
	"github.com/tbourn/crystarise-backend/internal/ledger"
)

// RoomService provides room-level operations: creating solo and group
// rooms, joining, and listing rooms and members.
type RoomService struct {
	// Rooms is the storage backend for rooms and memberships.
	Rooms RoomStore

	// NameMaxLen caps room names by rune length.
	NameMaxLen int
	// TitleMaxLen caps crystal titles by rune length.
	TitleMaxLen int
	// UnitMaxLen caps unit labels by rune length.
	UnitMaxLen int

	// hash hashes join secrets; tests swap in a cheaper function.
	hash func(string) (string, error)
}

// NewRoomService constructs a RoomService with default text limits.
func NewRoomService(rooms RoomStore) *RoomService {
	return &RoomService{
		Rooms:       rooms,
		NameMaxLen:  255,
		TitleMaxLen: 255,
		UnitMaxLen:  32,
		hash:        ledger.HashSecret,
	}
}

// GoalInput describes the crystal created alongside a room.
type GoalInput struct {
	Title  string
	Target ledger.Amount
	Unit   string
}

// SoloInput is the input of CreateSolo. Name defaults to the crystal title.
type SoloInput struct {
	GoalInput
	Name     string
	Password string
}

// SoloRoom is the result of CreateSolo.
type SoloRoom struct {
	RoomID      int64         `json:"room_id"`
	CrystalID   int64         `json:"crystal_id"`
	Title       string        `json:"title"`
	TargetValue ledger.Amount `json:"target_value"`
	Unit        string        `json:"unit"`
}

// GroupRoom is a group room created together with its crystal.
type GroupRoom struct {
	Room    *domain.Room    `json:"room"`
	Crystal *domain.Crystal `json:"crystal"`
}

// JoinResult reports the outcome of a successful join.
type JoinResult struct {
	RoomID        int64       `json:"room_id"`
	Role          ledger.Role `json:"role"`
	AlreadyMember bool        `json:"already_member"`
}

// CreateSolo creates a solo room with its crystal, hosted by the actor.
//
// Semantics:
//   - title and unit are normalized and required; target must fit
//     numeric(12,4): 8 whole digits and at most 4 decimals.
//   - An empty name falls back to the title.
//   - Room, crystal and host membership are committed as one unit by the
//     backend (transaction or stored procedure).
func (s *RoomService) CreateSolo(ctx context.Context, a domain.Actor, in SoloInput) (*SoloRoom, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "CreateSolo",
		trace.WithAttributes(attribute.String("user.id", a.UserID)),
	)
	defer span.End()

	goal, err := s.goal(in.GoalInput)
	if err != nil {
		return nil, err
	}
	name := clip(normalizeText(in.Name), s.NameMaxLen)
	if name == "" {
		name = clip(goal.Title, s.NameMaxLen)
	}
	secret, err := s.hashSecret(in.Password)
	if err != nil {
		return nil, err
	}

	ids, err := s.Rooms.CreateSoloRoom(ctx, a, domain.NewSoloRoom{
		Name:     name,
		Title:    goal.Title,
		Target:   goal.Target,
		Unit:     goal.Unit,
		Password: secret,
	})
	if err != nil {
		return nil, err
	}
	roomsCreated.WithLabelValues(string(ledger.ModeSolo)).Inc()
	span.SetAttributes(attribute.Int64("room.id", ids.RoomID), attribute.Int64("crystal.id", ids.CrystalID))
	zerolog.Ctx(ctx).Info().Int64("room_id", ids.RoomID).Int64("crystal_id", ids.CrystalID).Msg("solo room created")

	return &SoloRoom{
		RoomID:      ids.RoomID,
		CrystalID:   ids.CrystalID,
		Title:       goal.Title,
		TargetValue: goal.Target,
		Unit:        goal.Unit,
	}, nil
}

// CreateRoom creates a room without a crystal, hosted by the actor.
// mode must be "solo" or "group"; the name is required.
func (s *RoomService) CreateRoom(ctx context.Context, a domain.Actor, name string, mode ledger.Mode, password string) (*domain.Room, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "CreateRoom",
		trace.WithAttributes(
			attribute.String("user.id", a.UserID),
			attribute.String("room.mode", string(mode)),
		),
	)
	defer span.End()

	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	name = clip(normalizeText(name), s.NameMaxLen)
	if name == "" {
		return nil, ErrNameRequired
	}
	secret, err := s.hashSecret(password)
	if err != nil {
		return nil, err
	}

	room := &domain.Room{Name: name, Mode: mode, Password: secret}
	if err := s.Rooms.CreateRoom(ctx, a, room, nil); err != nil {
		return nil, err
	}
	roomsCreated.WithLabelValues(string(mode)).Inc()
	zerolog.Ctx(ctx).Info().Int64("room_id", room.ID).Str("mode", string(mode)).Msg("room created")
	return room, nil
}

// CreateGroupRoom creates a group room together with its crystal. An empty
// name falls back to the crystal title.
//
// Whether a failure after the room insert is rolled back depends on the
// backend: the embedded store uses one transaction, the hosted store writes
// sequentially and logs the orphaned room.
func (s *RoomService) CreateGroupRoom(ctx context.Context, a domain.Actor, name, password string, g GoalInput) (*GroupRoom, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "CreateGroupRoom",
		trace.WithAttributes(attribute.String("user.id", a.UserID)),
	)
	defer span.End()

	goal, err := s.goal(g)
	if err != nil {
		return nil, err
	}
	name = clip(normalizeText(name), s.NameMaxLen)
	if name == "" {
		name = clip(goal.Title, s.NameMaxLen)
	}
	secret, err := s.hashSecret(password)
	if err != nil {
		return nil, err
	}

	room := &domain.Room{Name: name, Mode: ledger.ModeGroup, Password: secret}
	crystal := &domain.Crystal{Title: goal.Title, TargetValue: goal.Target, Unit: goal.Unit}
	if err := s.Rooms.CreateRoom(ctx, a, room, crystal); err != nil {
		return nil, err
	}
	roomsCreated.WithLabelValues(string(ledger.ModeGroup)).Inc()
	zerolog.Ctx(ctx).Info().Int64("room_id", room.ID).Int64("crystal_id", crystal.ID).Msg("group room created")
	return &GroupRoom{Room: room, Crystal: crystal}, nil
}

// Join adds the actor to a room.
//
// Errors, in order of precedence:
//   - ErrRoomNotFound if the room does not exist.
//   - ErrWrongPassword if the password does not match.
//   - ErrRoomOccupied if the room is solo and has any member, the actor
//     included.
//
// Re-joining a group room is a no-op reported with AlreadyMember.
func (s *RoomService) Join(ctx context.Context, a domain.Actor, roomID int64, password string) (*JoinResult, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "Join",
		trace.WithAttributes(
			attribute.String("user.id", a.UserID),
			attribute.Int64("room.id", roomID),
		),
	)
	defer span.End()

	room, err := s.Rooms.GetRoom(ctx, a, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	occupants, err := s.Rooms.Occupants(ctx, a, roomID)
	if err != nil {
		return nil, err
	}

	lg := zerolog.Ctx(ctx)
	outcome, err := ledger.DecideJoin(room.JoinRules(), password, a.UserID, occupants)
	if err != nil {
		roomJoins.WithLabelValues("refused").Inc()
		lg.Info().Int64("room_id", roomID).Str("reason", err.Error()).Msg("join refused")
		switch {
		case errors.Is(err, ledger.ErrWrongPassword):
			return nil, ErrWrongPassword
		case errors.Is(err, ledger.ErrRoomOccupied):
			return nil, ErrRoomOccupied
		}
		return nil, err
	}

	res := &JoinResult{RoomID: roomID, Role: ledger.RoleMember, AlreadyMember: outcome == ledger.JoinNoop}
	if outcome == ledger.JoinInsert {
		if err := s.Rooms.AddMember(ctx, a, roomID, ledger.RoleMember); err != nil {
			return nil, err
		}
	} else if room.HostID == a.UserID {
		res.Role = ledger.RoleHost
	}
	roomJoins.WithLabelValues("joined").Inc()
	lg.Info().Int64("room_id", roomID).Bool("already_member", res.AlreadyMember).Msg("join accepted")
	return res, nil
}

// Mine lists the actor's rooms, most recently joined first.
func (s *RoomService) Mine(ctx context.Context, a domain.Actor) ([]domain.MyRoom, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "Mine",
		trace.WithAttributes(attribute.String("user.id", a.UserID)),
	)
	defer span.End()

	rooms, err := s.Rooms.ListMyRooms(ctx, a)
	if err != nil {
		return nil, err
	}
	if rooms == nil {
		rooms = []domain.MyRoom{}
	}
	return rooms, nil
}

// Get fetches a room by id.
func (s *RoomService) Get(ctx context.Context, a domain.Actor, roomID int64) (*domain.Room, error) {
	room, err := s.Rooms.GetRoom(ctx, a, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// Members lists the memberships of a room the actor belongs to.
func (s *RoomService) Members(ctx context.Context, a domain.Actor, roomID int64) ([]domain.Membership, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "Members",
		trace.WithAttributes(attribute.Int64("room.id", roomID)),
	)
	defer span.End()

	ms, err := s.Rooms.ListMembers(ctx, a, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if ms == nil {
		ms = []domain.Membership{}
	}
	return ms, nil
}

// goal normalizes and validates a crystal definition.
func (s *RoomService) goal(g GoalInput) (GoalInput, error) {
	return validateGoal(g, s.TitleMaxLen, s.UnitMaxLen)
}

func (s *RoomService) hashSecret(plain string) (string, error) {
	hash := s.hash
	if hash == nil {
		hash = ledger.HashSecret
	}
	h, err := hash(plain)
	if err != nil {
		return "", domain.Unavailable("hash room password", err)
	}
	return h, nil
}

// validateGoal is shared by room and crystal creation.
func validateGoal(g GoalInput, titleMax, unitMax int) (GoalInput, error) {
	g.Title = clip(normalizeText(g.Title), titleMax)
	g.Unit = clip(normalizeText(g.Unit), unitMax)
	switch {
	case g.Title == "":
		return g, ErrTitleRequired
	case g.Unit == "":
		return g, ErrUnitRequired
	}
	if err := g.Target.Validate(); err != nil {
		return g, ErrTargetPrecision
	}
	return g, nil
}
