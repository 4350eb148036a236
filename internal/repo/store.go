// Package repo implements the embedded storage backend on GORM. This file
// binds the repository functions into Store, the backend used when the
// service runs without a hosted database.
//
// Store mirrors the access rules of the hosted row policies: rooms are
// readable by id, while memberships, crystals and records are visible only
// to members of the room. Invisible rows are reported as not found.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/crystarise-backend/internal/domain"
	"github.com/tbourn/crystarise-backend/internal/ledger"
)

// Store is the embedded storage backend.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

// CreateSoloRoom creates a solo room with its crystal and host membership in
// one transaction.
func (s *Store) CreateSoloRoom(ctx context.Context, a domain.Actor, in domain.NewSoloRoom) (domain.SoloRoomIDs, error) {
	ids, err := CreateSoloRoom(ctx, s.DB, a.UserID, in)
	if err != nil {
		return domain.SoloRoomIDs{}, translate(err, "create solo room")
	}
	return ids, nil
}

// CreateRoom creates a room, its host membership and an optional crystal in
// one transaction. On success room and crystal carry their assigned ids.
func (s *Store) CreateRoom(ctx context.Context, a domain.Actor, room *domain.Room, crystal *domain.Crystal) error {
	room.HostID = a.UserID
	if err := CreateRoomWithHost(ctx, s.DB, room, crystal); err != nil {
		return translate(err, "create room")
	}
	return nil
}

// GetRoom fetches a room by id.
func (s *Store) GetRoom(ctx context.Context, _ domain.Actor, id int64) (*domain.Room, error) {
	r, err := GetRoom(ctx, s.DB, id)
	if err != nil {
		return nil, translate(err, "room not found")
	}
	return r, nil
}

// Occupants returns the user ids of a room's members. It is not scoped to
// members so the capacity of a solo room can be checked before joining.
func (s *Store) Occupants(ctx context.Context, _ domain.Actor, roomID int64) ([]string, error) {
	ids, err := MemberIDs(ctx, s.DB, roomID)
	if err != nil {
		return nil, translate(err, "list occupants")
	}
	return ids, nil
}

// AddMember upserts a membership of the acting user; an existing one is
// left untouched.
func (s *Store) AddMember(ctx context.Context, a domain.Actor, roomID int64, role ledger.Role) error {
	if _, err := AddMember(ctx, s.DB, roomID, a.UserID, role); err != nil {
		return translate(err, "join room")
	}
	return nil
}

// ListMembers returns the members of a room the acting user belongs to.
func (s *Store) ListMembers(ctx context.Context, a domain.Actor, roomID int64) ([]domain.Membership, error) {
	if err := s.requireMember(ctx, a, roomID, "room not found"); err != nil {
		return nil, err
	}
	ms, err := ListMembers(ctx, s.DB, roomID)
	if err != nil {
		return nil, translate(err, "list members")
	}
	return ms, nil
}

// ListMyRooms returns the acting user's rooms with their role.
func (s *Store) ListMyRooms(ctx context.Context, a domain.Actor) ([]domain.MyRoom, error) {
	rooms, err := ListRoomsForUser(ctx, s.DB, a.UserID)
	if err != nil {
		return nil, translate(err, "list rooms")
	}
	return rooms, nil
}

// CrystalByRoom returns the crystal of a room visible to the acting user.
func (s *Store) CrystalByRoom(ctx context.Context, a domain.Actor, roomID int64) (*domain.Crystal, error) {
	c, err := GetCrystalByRoom(ctx, s.DB, roomID, a.UserID)
	if err != nil {
		return nil, translate(err, "crystal not found for this room")
	}
	return c, nil
}

// GetCrystal returns a crystal visible to the acting user.
func (s *Store) GetCrystal(ctx context.Context, a domain.Actor, id int64) (*domain.Crystal, error) {
	c, err := GetCrystal(ctx, s.DB, id, a.UserID)
	if err != nil {
		return nil, translate(err, "crystal not found")
	}
	return c, nil
}

// CreateCrystal inserts a crystal into a room the acting user belongs to.
func (s *Store) CreateCrystal(ctx context.Context, a domain.Actor, c *domain.Crystal) error {
	if err := s.requireMember(ctx, a, c.RoomID, "room not found"); err != nil {
		return err
	}
	if err := CreateCrystal(ctx, s.DB, c); err != nil {
		if isDuplicate(err) {
			return domain.Wrap(domain.KindConflict, "crystal already exists for this room", err)
		}
		return translate(err, "create crystal")
	}
	return nil
}

// AppendRecord appends a record by the acting user to a visible crystal.
func (s *Store) AppendRecord(ctx context.Context, a domain.Actor, r *domain.Record) error {
	if _, err := s.GetCrystal(ctx, a, r.CrystalID); err != nil {
		return err
	}
	r.UserID = a.UserID
	if err := CreateRecord(ctx, s.DB, r); err != nil {
		return translate(err, "append record")
	}
	return nil
}

// GetRecord returns a record of a crystal visible to the acting user.
func (s *Store) GetRecord(ctx context.Context, a domain.Actor, id int64) (*domain.Record, error) {
	r, err := GetRecord(ctx, s.DB, id)
	if err != nil {
		return nil, translate(err, "record not found")
	}
	if _, err := s.GetCrystal(ctx, a, r.CrystalID); err != nil {
		return nil, domain.NotFound("record not found")
	}
	return r, nil
}

// RecordValues returns every record value of a visible crystal.
func (s *Store) RecordValues(ctx context.Context, a domain.Actor, crystalID int64) ([]ledger.Amount, error) {
	if _, err := s.GetCrystal(ctx, a, crystalID); err != nil {
		return nil, err
	}
	vals, err := ListRecordValues(ctx, s.DB, crystalID)
	if err != nil {
		return nil, translate(err, "sum records")
	}
	return vals, nil
}

// ListRecords returns the newest records of a visible crystal.
func (s *Store) ListRecords(ctx context.Context, a domain.Actor, crystalID int64, limit int) ([]domain.Record, error) {
	if _, err := s.GetCrystal(ctx, a, crystalID); err != nil {
		return nil, err
	}
	out, err := ListRecords(ctx, s.DB, crystalID, limit)
	if err != nil {
		return nil, translate(err, "list records")
	}
	return out, nil
}

// RecordStats returns the count and newest timestamp of a visible crystal's
// records.
func (s *Store) RecordStats(ctx context.Context, a domain.Actor, crystalID int64) (domain.RecordStats, error) {
	if _, err := s.GetCrystal(ctx, a, crystalID); err != nil {
		return domain.RecordStats{}, err
	}
	n, newest, err := RecordsStats(ctx, s.DB, crystalID)
	if err != nil {
		return domain.RecordStats{}, translate(err, "record stats")
	}
	return domain.RecordStats{Count: n, Newest: newest}, nil
}

func (s *Store) requireMember(ctx context.Context, a domain.Actor, roomID int64, msg string) error {
	ok, err := IsMember(ctx, s.DB, roomID, a.UserID)
	if err != nil {
		return translate(err, msg)
	}
	if !ok {
		return domain.NotFound(msg)
	}
	return nil
}

// IdempotencyStore persists Idempotency-Key outcomes in the embedded
// database. It is used with either storage backend.
type IdempotencyStore struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Lookup returns the record id remembered for (user, scope, key).
func (s *IdempotencyStore) Lookup(ctx context.Context, userID, scope, key string) (int64, bool, error) {
	rec, err := GetIdempotency(ctx, s.DB, userID, scope, key, time.Now().UTC())
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, domain.Unavailable("idempotency lookup failed", err)
	}
	return rec.RecordID, true, nil
}

// Remember stores the record id produced for (user, scope, key). A
// concurrent duplicate is not an error; the first writer wins.
func (s *IdempotencyStore) Remember(ctx context.Context, userID, scope, key string, recordID int64, status int) error {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := CreateIdempotency(ctx, s.DB, userID, scope, key, recordID, status, ttl)
	if err != nil && !errors.Is(err, ErrDuplicate) {
		return domain.Unavailable("idempotency store failed", err)
	}
	return nil
}

// translate maps GORM errors into the domain taxonomy. msg names the
// failed operation, or the missing entity for not-found errors.
func translate(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.NotFound(msg)
	case isDuplicate(err):
		return domain.Wrap(domain.KindConflict, msg, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrCheckConstraintViolated):
		return domain.Wrap(domain.KindInvalid, msg, err)
	default:
		return domain.Classify(err, msg)
	}
}
