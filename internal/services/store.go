package services

import (
	"context"

	"github.com/tbourn/crystarise-backend/internal/domain"
	"github.com/tbourn/crystarise-backend/internal/ledger"
)

// RoomStore is the storage contract RoomService needs. Every method acts on
// behalf of the given actor, so the backend can apply its visibility rules.
// Implemented by repo.Store and supabase.Store.
type RoomStore interface {
	// CreateSoloRoom creates a solo room, its crystal and the host membership
	// as one unit.
	CreateSoloRoom(ctx context.Context, a domain.Actor, in domain.NewSoloRoom) (domain.SoloRoomIDs, error)

	// CreateRoom creates a room hosted by the actor, the host membership and,
	// when crystal is non-nil, the room's crystal. Generated ids are written
	// back into room and crystal.
	CreateRoom(ctx context.Context, a domain.Actor, room *domain.Room, crystal *domain.Crystal) error

	// GetRoom fetches a room by id.
	GetRoom(ctx context.Context, a domain.Actor, id int64) (*domain.Room, error)

	// Occupants returns the user ids already in the room.
	Occupants(ctx context.Context, a domain.Actor, roomID int64) ([]string, error)

	// AddMember inserts the actor's membership; an existing row is kept.
	AddMember(ctx context.Context, a domain.Actor, roomID int64, role ledger.Role) error

	// ListMembers returns a room's memberships, oldest first.
	ListMembers(ctx context.Context, a domain.Actor, roomID int64) ([]domain.Membership, error)

	// ListMyRooms returns the actor's rooms, most recently joined first.
	ListMyRooms(ctx context.Context, a domain.Actor) ([]domain.MyRoom, error)
}

// CrystalStore is the storage contract CrystalService needs.
type CrystalStore interface {
	// CrystalByRoom returns the crystal of a room.
	CrystalByRoom(ctx context.Context, a domain.Actor, roomID int64) (*domain.Crystal, error)

	// GetCrystal fetches a crystal by id.
	GetCrystal(ctx context.Context, a domain.Actor, id int64) (*domain.Crystal, error)

	// CreateCrystal inserts c and fills in its id and timestamp.
	CreateCrystal(ctx context.Context, a domain.Actor, c *domain.Crystal) error

	// AppendRecord inserts r as contributed by the actor and fills in its
	// id, user and timestamp.
	AppendRecord(ctx context.Context, a domain.Actor, r *domain.Record) error

	// GetRecord fetches a record by id.
	GetRecord(ctx context.Context, a domain.Actor, id int64) (*domain.Record, error)

	// RecordValues returns every committed value of a crystal.
	RecordValues(ctx context.Context, a domain.Actor, crystalID int64) ([]ledger.Amount, error)

	// ListRecords returns up to limit records, newest first.
	ListRecords(ctx context.Context, a domain.Actor, crystalID int64, limit int) ([]domain.Record, error)

	// RecordStats returns the record count and the newest created_at.
	RecordStats(ctx context.Context, a domain.Actor, crystalID int64) (domain.RecordStats, error)
}

// IdempotencyStore remembers which record an Idempotency-Key produced.
// Implemented by repo.IdempotencyStore.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, scope, key string) (int64, bool, error)
	Remember(ctx context.Context, userID, scope, key string, recordID int64, status int) error
}
