// Package repo implements the embedded storage backend on GORM. This file
// provides repository functions for the Crystal and Record models.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/crystarise-backend/internal/domain"
	"github.com/tbourn/crystarise-backend/internal/ledger"
)

// CreateCrystal inserts a crystal. A second crystal for the same room is
// rejected by the ux_crystal_room unique index.
func CreateCrystal(ctx context.Context, db *gorm.DB, c *domain.Crystal) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(c).Error
}

// GetCrystal fetches a crystal by id if viewerID is a member of its room.
func GetCrystal(ctx context.Context, db *gorm.DB, id int64, viewerID string) (*domain.Crystal, error) {
	var c domain.Crystal
	err := db.WithContext(ctx).
		Scopes(memberOf("crystals", viewerID)).
		Where("crystal_id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCrystalByRoom fetches the crystal of a room if viewerID is a member.
func GetCrystalByRoom(ctx context.Context, db *gorm.DB, roomID int64, viewerID string) (*domain.Crystal, error) {
	var c domain.Crystal
	err := db.WithContext(ctx).
		Scopes(memberOf("crystals", viewerID)).
		Where("crystals.room_id = ?", roomID).
		Order("crystal_id ASC").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateRecord appends a record.
func CreateRecord(ctx context.Context, db *gorm.DB, r *domain.Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(r).Error
}

// GetRecord fetches a record by id.
func GetRecord(ctx context.Context, db *gorm.DB, id int64) (*domain.Record, error) {
	var r domain.Record
	if err := db.WithContext(ctx).Where("record_id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRecordValues returns the values of every record of a crystal.
func ListRecordValues(ctx context.Context, db *gorm.DB, crystalID int64) ([]ledger.Amount, error) {
	var vals []ledger.Amount
	err := db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("crystal_id = ?", crystalID).
		Pluck("value", &vals).Error
	return vals, err
}

// ListRecords returns a crystal's records newest first. Ties on created_at
// are broken by id so the order is strict.
func ListRecords(ctx context.Context, db *gorm.DB, crystalID int64, limit int) ([]domain.Record, error) {
	var out []domain.Record
	q := db.WithContext(ctx).
		Where("crystal_id = ?", crystalID).
		Order("created_at DESC, record_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
