// Package repo implements the embedded storage backend on GORM. This file
// provides small aggregate queries used for conditional responses (ETag
// generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/crystarise-backend/internal/domain"
)

// RecordsStats returns the number of records of a crystal and the greatest
// CreatedAt among them. When the crystal has no records, the count is 0 and
// newest is nil.
func RecordsStats(ctx context.Context, db *gorm.DB, crystalID int64) (count int64, newest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Record{}).Where("crystal_id = ?", crystalID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Record{}).
		Where("crystal_id = ?", crystalID).
		Select("created_at").Order("created_at DESC").Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
