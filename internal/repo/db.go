// Package repo implements the embedded storage backend on GORM over a pure-Go
// SQLite driver. This file contains database bootstrapping helpers and schema
// migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/crystarise-backend/internal/domain"
)

// pragmas are applied to every database opened by OpenSQLite. WAL lets the
// record listings read while an append commits; foreign keys carry the
// room -> crystal -> record cascades.
// They go in the DSN so each pooled connection gets them, not just the first.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"busy_timeout(5000)",
}

// OpenSQLite opens (or creates) the ledger database at path. The parent
// directory must already exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	q := make([]string, len(pragmas))
	for i, p := range pragmas {
		q[i] = "_pragma=" + p
	}
	db, err := gorm.Open(sqlite.Open(path+"?"+strings.Join(q, "&")), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	// The driver connects lazily; surface a bad path here.
	if err := db.Exec("SELECT 1").Error; err != nil {
		return nil, fmt.Errorf("repo: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// EnableTracing registers the GORM OpenTelemetry plugin so every query
// becomes a child span of the request span.
func EnableTracing(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin(tracing.WithoutMetrics()))
}

// AutoMigrate creates or updates the embedded schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Room{},
		&domain.Membership{},
		&domain.Crystal{},
		&domain.Record{},
		&domain.Idempotency{},
	)
}
