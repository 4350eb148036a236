package repo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/crystarise-backend/internal/domain"
	"github.com/tbourn/crystarise-backend/internal/ledger"
)

func TestOpenSQLite_ErrorOnMissingDir(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "does-not-exist", "crystarise.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_PragmasAndPool(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "crystarise.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var mode string
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&mode); err != nil || strings.ToLower(mode) != "wal" {
		t.Fatalf("journal_mode = %q (%v)", mode, err)
	}
	for pragma, want := range map[string]int{"synchronous": 1, "foreign_keys": 1, "busy_timeout": 5000} {
		var got int
		if err := db.Raw("PRAGMA " + pragma + ";").Row().Scan(&got); err != nil || got != want {
			t.Fatalf("PRAGMA %s = %d (%v), want %d", pragma, got, err, want)
		}
	}
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("MaxOpenConnections = %d", stats.MaxOpenConnections)
	}
}

// The schema itself enforces the ledger's structural rules, so they hold
// even for writes that bypass the services.
func TestAutoMigrate_SchemaEnforcesLedgerRules(t *testing.T) {
	db := newLedgerDB(t)
	db.Exec("PRAGMA foreign_keys=ON;")
	now := time.Now().UTC()

	room := &domain.Room{Name: "Team", Mode: ledger.ModeGroup, HostID: "u1", CreatedAt: now}
	if err := db.Create(room).Error; err != nil {
		t.Fatalf("insert room: %v", err)
	}

	t.Run("mode is solo or group", func(t *testing.T) {
		bad := &domain.Room{Name: "x", Mode: ledger.Mode("duo"), HostID: "u1", CreatedAt: now}
		if err := db.Create(bad).Error; err == nil {
			t.Fatalf("expected check constraint failure")
		}
	})

	t.Run("one crystal per room", func(t *testing.T) {
		first := &domain.Crystal{RoomID: room.ID, Title: "Run", TargetValue: ledger.MustAmount("10"), Unit: "km", CreatedAt: now}
		if err := db.Create(first).Error; err != nil {
			t.Fatalf("insert crystal: %v", err)
		}
		second := &domain.Crystal{RoomID: room.ID, Title: "Swim", TargetValue: ledger.MustAmount("1"), Unit: "km", CreatedAt: now}
		if err := db.Create(second).Error; !errors.Is(err, gorm.ErrDuplicatedKey) {
			t.Fatalf("expected duplicated key, got %v", err)
		}
	})

	t.Run("one membership per user and room", func(t *testing.T) {
		m := &domain.Membership{RoomID: room.ID, UserID: "u2", Role: ledger.RoleMember, JoinedAt: now}
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("insert membership: %v", err)
		}
		dup := &domain.Membership{RoomID: room.ID, UserID: "u2", Role: ledger.RoleHost, JoinedAt: now}
		if err := db.Create(dup).Error; !errors.Is(err, gorm.ErrDuplicatedKey) {
			t.Fatalf("expected duplicated key, got %v", err)
		}
	})

	t.Run("records need a crystal", func(t *testing.T) {
		orphan := &domain.Record{CrystalID: 9999, UserID: "u1", Value: ledger.MustAmount("1"), CreatedAt: now}
		if err := db.Create(orphan).Error; err == nil {
			t.Fatalf("expected foreign key failure")
		}
	})

	t.Run("deleting a room cascades", func(t *testing.T) {
		var c domain.Crystal
		if err := db.First(&c, "room_id = ?", room.ID).Error; err != nil {
			t.Fatalf("load crystal: %v", err)
		}
		rec := &domain.Record{CrystalID: c.ID, UserID: "u1", Value: ledger.MustAmount("2.5"), CreatedAt: now}
		if err := db.Create(rec).Error; err != nil {
			t.Fatalf("insert record: %v", err)
		}
		if err := db.Delete(&domain.Room{}, "room_id = ?", room.ID).Error; err != nil {
			t.Fatalf("delete room: %v", err)
		}
		var n int64
		db.Model(&domain.Record{}).Where("crystal_id = ?", c.ID).Count(&n)
		if n != 0 {
			t.Fatalf("records survived their room: %d", n)
		}
	})
}

func TestEnableTracing_RegistersPlugin(t *testing.T) {
	db := newTestDB(t)
	if err := EnableTracing(db); err != nil {
		t.Fatalf("EnableTracing: %v", err)
	}
	if err := EnableTracing(db); err == nil {
		t.Fatalf("expected duplicate plugin registration to fail")
	}
}
