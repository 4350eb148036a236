// Package services – ProfileService
//
// This file implements the ProfileService, which assembles the caller's
// profile card from identity metadata and room statistics, and updates the
// name and avatar metadata through the identity provider.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/crystarise-backend/internal/auth"
	"github.com/tbourn/crystarise-backend/internal/domain"
	"github.com/tbourn/crystarise-backend/internal/ledger"
)

// ProfileService builds and updates profile cards.
type ProfileService struct {
	Rooms    RoomStore
	Crystals CrystalStore
	Accounts auth.Accounts

	// NameMaxLen caps display names by rune length.
	NameMaxLen int
}

// NewProfileService constructs a ProfileService.
func NewProfileService(rooms RoomStore, crystals CrystalStore, accounts auth.Accounts) *ProfileService {
	return &ProfileService{Rooms: rooms, Crystals: crystals, Accounts: accounts, NameMaxLen: 255}
}

// Get returns the profile card of the verified identity id.
//
//   - display_name: name metadata, else the email local part, else "User".
//   - solo_count / team_count: the caller's rooms by mode.
//   - badge_count: the caller's crystals whose total reached the target.
func (s *ProfileService) Get(ctx context.Context, a domain.Actor, id *auth.Identity) (*domain.Profile, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("user.id", a.UserID)),
	)
	defer span.End()

	rooms, err := s.Rooms.ListMyRooms(ctx, a)
	if err != nil {
		return nil, err
	}

	p := &domain.Profile{DisplayName: id.DisplayName(), AvatarURL: id.AvatarURL()}
	for _, r := range rooms {
		switch r.Mode {
		case ledger.ModeSolo:
			p.SoloCount++
		case ledger.ModeGroup:
			p.TeamCount++
		}
		done, err := s.completed(ctx, a, r.ID)
		if err != nil {
			return nil, err
		}
		if done {
			p.BadgeCount++
		}
	}
	return p, nil
}

// Update writes the name and/or avatar metadata and returns the refreshed
// profile card. nil fields are left unchanged.
func (s *ProfileService) Update(ctx context.Context, a domain.Actor, name, avatarURL *string) (*domain.Profile, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Update",
		trace.WithAttributes(attribute.String("user.id", a.UserID)),
	)
	defer span.End()

	if name != nil {
		n := clip(normalizeText(*name), s.NameMaxLen)
		name = &n
	}
	id, err := s.Accounts.UpdateProfile(ctx, a, name, avatarURL)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, a, id)
}

// completed reports whether the room's crystal has reached its target.
// Rooms without a crystal never count.
func (s *ProfileService) completed(ctx context.Context, a domain.Actor, roomID int64) (bool, error) {
	c, err := s.Crystals.CrystalByRoom(ctx, a, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	vals, err := s.Crystals.RecordValues(ctx, a, c.ID)
	if err != nil {
		return false, err
	}
	return ledger.Summarize(c.Goal(), vals).Completed(), nil
}
