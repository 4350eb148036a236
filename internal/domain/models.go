// Package domain defines the persistence models for rooms, memberships,
// crystals and records. The types are mapped with GORM for the embedded
// store and carry the same JSON names as the hosted tables, so both storage
// backends exchange identical rows.
package domain

import (
	"time"

	"github.com/tbourn/crystarise-backend/internal/ledger"
)

// Room is a shared space pursuing one crystal. A solo room admits exactly
// one member; a group room admits anyone with the password.
//
// Fields:
//   - ID: numeric primary key (room_id).
//   - Name: display name.
//   - Mode: "solo" or "group".
//   - Password: join secret; bcrypt hash when written by this service, never serialized.
//   - HostID: user id of the creator.
type Room struct {
	ID        int64       `json:"room_id"    gorm:"column:room_id;primaryKey;autoIncrement"`
	Name      string      `json:"name"       gorm:"type:varchar(255);not null;default:''"`
	Mode      ledger.Mode `json:"mode"       gorm:"type:varchar(8);not null;check:mode IN ('solo','group')"`
	Password  string      `json:"-"          gorm:"type:varchar(255);not null;default:''"`
	HostID    string      `json:"host_id"    gorm:"type:varchar(64);not null;index"`
	CreatedAt time.Time   `json:"created_at"`
}

// TableName returns the database table name for Room.
func (Room) TableName() string { return "rooms" }

// JoinRules returns the view of the room used by the join rules.
func (r Room) JoinRules() ledger.Room {
	return ledger.Room{Mode: r.Mode, Secret: r.Password}
}

// Membership ties a user to a room. The (room_id, user_id) pair is the
// primary key, so a user belongs to a room at most once.
type Membership struct {
	RoomID   int64       `json:"room_id"   gorm:"column:room_id;primaryKey;autoIncrement:false"`
	UserID   string      `json:"user_id"   gorm:"type:varchar(64);primaryKey;index:idx_member_user"`
	Role     ledger.Role `json:"role"      gorm:"type:varchar(8);not null;check:role IN ('host','member')"`
	JoinedAt time.Time   `json:"joined_at" gorm:"not null"`

	Room Room `json:"-" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Membership.
func (Membership) TableName() string { return "room_members" }

// MyRoom is a room listed for the caller together with the caller's role.
type MyRoom struct {
	Room
	Role     ledger.Role `json:"role"`
	JoinedAt time.Time   `json:"joined_at"`
}

// Crystal is the goal of a room: a fixed-point target and its unit.
//
// The embedded store puts a unique index on room_id; the hosted schema may
// not, in which case one-crystal-per-room relies on the service's
// check-before-insert.
type Crystal struct {
	ID          int64         `json:"crystal_id"   gorm:"column:crystal_id;primaryKey;autoIncrement"`
	RoomID      int64         `json:"room_id"      gorm:"column:room_id;not null;uniqueIndex:ux_crystal_room"`
	Title       string        `json:"title"        gorm:"type:varchar(255);not null"`
	TargetValue ledger.Amount `json:"target_value" gorm:"type:text;not null"`
	Unit        string        `json:"unit"         gorm:"type:varchar(32);not null"`
	CreatedAt   time.Time     `json:"created_at"`

	Room Room `json:"-" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Crystal.
func (Crystal) TableName() string { return "crystals" }

// Goal returns the ledger view of the crystal.
func (c Crystal) Goal() ledger.Goal {
	return ledger.Goal{ID: c.ID, Title: c.Title, Target: c.TargetValue, Unit: c.Unit}
}

// Record is one logged contribution toward a crystal. Records are append-only.
type Record struct {
	ID        int64         `json:"record_id"  gorm:"column:record_id;primaryKey;autoIncrement"`
	CrystalID int64         `json:"crystal_id" gorm:"column:crystal_id;not null;index:idx_crystal_records,priority:1"`
	UserID    string        `json:"user_id"    gorm:"type:varchar(64);not null;index"`
	Value     ledger.Amount `json:"value"      gorm:"type:text;not null"`
	Note      *string       `json:"note"`
	CreatedAt time.Time     `json:"created_at" gorm:"index:idx_crystal_records,priority:2"`

	Crystal Crystal `json:"-" gorm:"foreignKey:CrystalID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Record.
func (Record) TableName() string { return "crystal_records" }

// User is a locally managed account, used only by the embedded identity
// provider. The hosted deployment keeps users in its own auth service.
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(255);not null"`
	DisplayName  string    `json:"name"       gorm:"type:varchar(255);not null;default:''"`
	AvatarURL    string    `json:"avatar_url" gorm:"type:text;not null;default:''"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Profile is the caller's profile card.
type Profile struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	SoloCount   int    `json:"solo_count"`
	TeamCount   int    `json:"team_count"`
	BadgeCount  int    `json:"badge_count"`
}
