package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/crystarise-backend/internal/domain"
)

func TestGetIdempotency_NoScope_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	rec, err := GetIdempotency(context.Background(), db, "u1", "   ", "k1", now)
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for empty scope, got (%v, %v)", rec, err)
	}
}

func TestGetIdempotency_ExpiredOrMissing_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	exp := &domain.Idempotency{
		ID:        "expired",
		UserID:    "u1",
		Scope:     "crystal:1",
		Key:       "k1",
		RecordID:  5,
		Status:    200,
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	rec, err := GetIdempotency(context.Background(), db, "u1", "crystal:1", "k1", now)
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for expired, got (%v, %v)", rec, err)
	}

	rec2, err2 := GetIdempotency(context.Background(), db, "u1", "crystal:1", "missing", now)
	if rec2 != nil || err2 != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for missing, got (%v, %v)", rec2, err2)
	}
}

func TestCreateIdempotency_SuccessDuplicateAndExpiredReplace(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	ttl := 90 * time.Minute
	start := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "u9", "room:9", "k9", 77, 201, ttl)
	if err != nil {
		t.Fatalf("CreateIdempotency error: %v", err)
	}
	if rec == nil || rec.ID == "" || rec.Scope != "room:9" || rec.RecordID != 77 || rec.Status != 201 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !(rec.ExpiresAt.After(start) && rec.ExpiresAt.Before(start.Add(2*time.Hour))) {
		t.Fatalf("unexpected ExpiresAt: %v", rec.ExpiresAt)
	}

	if _, err := CreateIdempotency(ctx, db, "u9", "room:9", "k9", 78, 201, ttl); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// An expired entry does not block reuse of the key.
	if err := db.Model(&domain.Idempotency{}).Where("id = ?", rec.ID).
		Update("expires_at", start.Add(-time.Minute)).Error; err != nil {
		t.Fatalf("expire: %v", err)
	}
	again, err := CreateIdempotency(ctx, db, "u9", "room:9", "k9", 79, 201, ttl)
	if err != nil {
		t.Fatalf("recreate after expiry: %v", err)
	}
	if again.RecordID != 79 {
		t.Fatalf("expected new record id 79, got %d", again.RecordID)
	}
}

func TestCreateIdempotency_Error_NoTable(t *testing.T) {
	db := newTestDB(t) // intentionally NOT migrating idempotency
	_, err := CreateIdempotency(context.Background(), db, "uX", "crystal:1", "kX", 1, 200, time.Minute)
	if err == nil {
		t.Fatalf("expected error when table is missing")
	}
	if err == ErrDuplicate {
		t.Fatalf("expected non-duplicate error, got ErrDuplicate")
	}
}

func TestIdempotencyStore_LookupRemember(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	s := &IdempotencyStore{DB: db}
	ctx := context.Background()

	if _, ok, err := s.Lookup(ctx, "u1", "crystal:3", "k"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := s.Remember(ctx, "u1", "crystal:3", "k", 11, 200); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	// Second writer loses silently.
	if err := s.Remember(ctx, "u1", "crystal:3", "k", 12, 200); err != nil {
		t.Fatalf("Remember duplicate: %v", err)
	}
	id, ok, err := s.Lookup(ctx, "u1", "crystal:3", "k")
	if err != nil || !ok || id != 11 {
		t.Fatalf("expected hit 11, got id=%d ok=%v err=%v", id, ok, err)
	}
}
