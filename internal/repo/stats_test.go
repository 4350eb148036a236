package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/crystarise-backend/internal/domain"
	"github.com/tbourn/crystarise-backend/internal/ledger"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// newLedgerDB migrates every embedded table.
func newLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seedCrystal creates a group room hosted by hostID with a crystal.
func seedCrystal(t *testing.T, db *gorm.DB, hostID, target string) (*domain.Room, *domain.Crystal) {
	t.Helper()
	room := &domain.Room{Name: "R", Mode: ledger.ModeGroup, HostID: hostID}
	c := &domain.Crystal{Title: "Run", TargetValue: ledger.MustAmount(target), Unit: "km"}
	if err := CreateRoomWithHost(context.Background(), db, room, c); err != nil {
		t.Fatalf("seed crystal: %v", err)
	}
	return room, c
}

func TestRecordsStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	_, _, err := RecordsStats(context.Background(), db, 1)
	if err == nil {
		t.Fatalf("expected error due to missing crystal_records table")
	}
}

func TestRecordsStats_ZeroRows(t *testing.T) {
	db := newLedgerDB(t)
	count, newest, err := RecordsStats(context.Background(), db, 1)
	if err != nil {
		t.Fatalf("RecordsStats error: %v", err)
	}
	if count != 0 || newest != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, newest)
	}
}

func TestRecordsStats_Success_FilterAndMax(t *testing.T) {
	db := newLedgerDB(t)
	_, c1 := seedCrystal(t, db, "u1", "100")
	_, c2 := seedCrystal(t, db, "u2", "100")

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // newest for c1
	t3 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)   // other crystal

	for _, r := range []*domain.Record{
		{CrystalID: c1.ID, UserID: "u1", Value: ledger.MustAmount("1"), CreatedAt: t1},
		{CrystalID: c1.ID, UserID: "u1", Value: ledger.MustAmount("2"), CreatedAt: t2},
		{CrystalID: c2.ID, UserID: "u2", Value: ledger.MustAmount("3"), CreatedAt: t3},
	} {
		if err := CreateRecord(context.Background(), db, r); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}

	count, newest, err := RecordsStats(context.Background(), db, c1.ID)
	if err != nil {
		t.Fatalf("RecordsStats error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if newest == nil || !newest.Equal(t2) {
		t.Fatalf("expected newest %v, got %v", t2, newest)
	}
}
