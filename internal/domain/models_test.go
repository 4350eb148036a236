package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/crystarise-backend/internal/ledger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection so the PRAGMA below applies to every statement.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&Room{}, &Membership{}, &Crystal{}, &Record{}, &User{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Room{}).TableName():       "rooms",
		(Membership{}).TableName(): "room_members",
		(Crystal{}).TableName():    "crystals",
		(Record{}).TableName():     "crystal_records",
		(User{}).TableName():       "users",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)
	m := db.Migrator()

	if !m.HasIndex(&Crystal{}, "ux_crystal_room") {
		t.Fatalf("expected unique index ux_crystal_room on crystals")
	}
	if !m.HasIndex(&Record{}, "idx_crystal_records") {
		t.Fatalf("expected index idx_crystal_records on crystal_records")
	}
	if !m.HasIndex(&Membership{}, "idx_member_user") {
		t.Fatalf("expected index idx_member_user on room_members")
	}

	now := time.Now().UTC()
	room := &Room{Name: "R", Mode: ledger.ModeGroup, HostID: "u1", CreatedAt: now}
	if err := db.Create(room).Error; err != nil {
		t.Fatalf("insert room: %v", err)
	}
	if room.ID == 0 {
		t.Fatalf("expected autoincrement room id")
	}
	if err := db.Create(&Membership{RoomID: room.ID, UserID: "u1", Role: ledger.RoleHost, JoinedAt: now}).Error; err != nil {
		t.Fatalf("insert membership: %v", err)
	}
	if err := db.Create(&Membership{RoomID: room.ID, UserID: "u1", Role: ledger.RoleMember, JoinedAt: now}).Error; err == nil {
		t.Fatalf("expected duplicate membership to be rejected")
	}

	cr := &Crystal{RoomID: room.ID, Title: "Run", TargetValue: ledger.MustAmount("100"), Unit: "km", CreatedAt: now}
	if err := db.Create(cr).Error; err != nil {
		t.Fatalf("insert crystal: %v", err)
	}
	if err := db.Create(&Crystal{RoomID: room.ID, Title: "Again", TargetValue: ledger.MustAmount("1"), Unit: "km"}).Error; err == nil {
		t.Fatalf("expected second crystal for the same room to be rejected")
	}

	note := "morning"
	rec := &Record{CrystalID: cr.ID, UserID: "u1", Value: ledger.MustAmount("12.5"), Note: &note, CreatedAt: now}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert record: %v", err)
	}

	var got Record
	if err := db.First(&got, "record_id = ?", rec.ID).Error; err != nil {
		t.Fatalf("readback record: %v", err)
	}
	if got.Value.String() != "12.5000" || got.Note == nil || *got.Note != "morning" {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Deleting the room cascades to members, crystal and records.
	if err := db.Delete(&Room{}, room.ID).Error; err != nil {
		t.Fatalf("delete room: %v", err)
	}
	var n int64
	db.Model(&Membership{}).Where("room_id = ?", room.ID).Count(&n)
	if n != 0 {
		t.Fatalf("expected memberships removed by cascade, got %d", n)
	}
	db.Model(&Record{}).Where("crystal_id = ?", cr.ID).Count(&n)
	if n != 0 {
		t.Fatalf("expected records removed by cascade, got %d", n)
	}
}

func TestRoomModeCheckConstraint(t *testing.T) {
	db := newDomainDB(t)
	err := db.Create(&Room{Name: "X", Mode: ledger.Mode("duo"), HostID: "u1"}).Error
	if err == nil {
		t.Fatalf("expected check constraint to reject mode %q", "duo")
	}
}

func TestRoomJSON_HidesPassword(t *testing.T) {
	b, err := json.Marshal(Room{ID: 3, Name: "R", Mode: ledger.ModeSolo, Password: "secret", HostID: "u1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if strings.Contains(s, "secret") || strings.Contains(s, "password") {
		t.Fatalf("password leaked into JSON: %s", s)
	}
	if !strings.Contains(s, `"room_id":3`) {
		t.Fatalf("expected room_id in JSON: %s", s)
	}
}

func TestMyRoomJSON_FlattensRoom(t *testing.T) {
	b, err := json.Marshal(MyRoom{Room: Room{ID: 1, Name: "R", Mode: ledger.ModeGroup}, Role: ledger.RoleHost})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["role"] != "host" || m["name"] != "R" {
		t.Fatalf("unexpected JSON: %s", b)
	}
}

func TestCrystalGoal(t *testing.T) {
	c := Crystal{ID: 4, Title: "Read", TargetValue: ledger.MustAmount("30"), Unit: "pages"}
	g := c.Goal()
	if g.ID != 4 || g.Title != "Read" || g.Unit != "pages" || !g.Target.Equal(ledger.MustAmount("30")) {
		t.Fatalf("unexpected goal: %+v", g)
	}
}
