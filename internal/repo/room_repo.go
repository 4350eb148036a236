// Package repo implements the embedded storage backend on GORM. This file
// provides repository functions for rooms and memberships.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business rules, only persistence
// and query composition. Callers (see Store) translate errors into the
// domain taxonomy.
//
// Error semantics:
//   - When a row is not found or not visible, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/crystarise-backend/internal/domain"
	"github.com/tbourn/crystarise-backend/internal/ledger"
)

// ErrNotFound is returned when a requested row does not exist or is not
// visible to the acting user.
var ErrNotFound = gorm.ErrRecordNotFound

// memberOf restricts a query on a table carrying room_id to rooms the user
// belongs to. The embedded store uses it to mirror the hosted row policies.
func memberOf(table, userID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(table+".room_id IN (?)",
			db.Session(&gorm.Session{NewDB: true}).
				Model(&domain.Membership{}).
				Select("room_id").
				Where("user_id = ?", userID))
	}
}

// CreateRoom inserts a room. The ID is assigned by the database.
func CreateRoom(ctx context.Context, db *gorm.DB, r *domain.Room) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(r).Error
}

// GetRoom fetches a room by id. Rooms are readable by id so that a
// prospective member can join.
func GetRoom(ctx context.Context, db *gorm.DB, id int64) (*domain.Room, error) {
	var r domain.Room
	if err := db.WithContext(ctx).Where("room_id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// AddMember inserts a membership and ignores an existing (room_id, user_id)
// pair. It reports whether a row was written.
func AddMember(ctx context.Context, db *gorm.DB, roomID int64, userID string, role ledger.Role) (bool, error) {
	m := &domain.Membership{
		RoomID:   roomID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IsMember reports whether userID belongs to roomID.
func IsMember(ctx context.Context, db *gorm.DB, roomID int64, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&n).Error
	return n > 0, err
}

// ListMembers returns the memberships of a room ordered by join time.
func ListMembers(ctx context.Context, db *gorm.DB, roomID int64) ([]domain.Membership, error) {
	var out []domain.Membership
	err := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC, user_id ASC").
		Find(&out).Error
	return out, err
}

// MemberIDs returns the user ids of a room's members.
func MemberIDs(ctx context.Context, db *gorm.DB, roomID int64) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("room_id = ?", roomID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// ListRoomsForUser returns the rooms userID belongs to, newest membership
// first, together with the user's role in each.
func ListRoomsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.MyRoom, error) {
	var ms []domain.Membership
	err := db.WithContext(ctx).
		Preload("Room").
		Where("user_id = ?", userID).
		Order("joined_at DESC, room_id DESC").
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.MyRoom, 0, len(ms))
	for _, m := range ms {
		out = append(out, domain.MyRoom{Room: m.Room, Role: m.Role, JoinedAt: m.JoinedAt})
	}
	return out, nil
}

// CreateSoloRoom creates a solo room, the host membership and the crystal in
// one transaction.
func CreateSoloRoom(ctx context.Context, db *gorm.DB, hostID string, in domain.NewSoloRoom) (domain.SoloRoomIDs, error) {
	room := &domain.Room{Name: in.Name, Mode: ledger.ModeSolo, Password: in.Password, HostID: hostID}
	crystal := &domain.Crystal{Title: in.Title, TargetValue: in.Target, Unit: in.Unit}
	if err := CreateRoomWithHost(ctx, db, room, crystal); err != nil {
		return domain.SoloRoomIDs{}, err
	}
	return domain.SoloRoomIDs{RoomID: room.ID, CrystalID: crystal.ID}, nil
}

// CreateRoomWithHost inserts the room, the host membership and, when crystal
// is non-nil, the room's crystal inside one transaction. Nothing is left
// behind if any step fails.
func CreateRoomWithHost(ctx context.Context, db *gorm.DB, room *domain.Room, crystal *domain.Crystal) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := CreateRoom(ctx, tx, room); err != nil {
			return err
		}
		if _, err := AddMember(ctx, tx, room.ID, room.HostID, ledger.RoleHost); err != nil {
			return err
		}
		if crystal == nil {
			return nil
		}
		crystal.RoomID = room.ID
		return CreateCrystal(ctx, tx, crystal)
	})
}
