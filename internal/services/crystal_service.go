// Package services – CrystalService
//
// This file implements the CrystalService, the entry point to the progress
// ledger. It creates a room's crystal, appends records and derives summaries
// from every committed record value.
//
// Appending has two distinct result shapes that must stay separate:
//   - by crystal id: the integer percent of the target that one record
//     represents (floor, not clamped);
//   - by room id: the record plus the post-write summary, whose rate is
//     clamped to [0, 1].
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// crystal, room and user identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/crystarise-backend/internal/domain"
	"github.com/tbourn/crystarise-backend/internal/ledger"
)

// CrystalService orchestrates crystals, records and summaries.
type CrystalService struct {
	// Crystals is the storage backend for crystals and records.
	Crystals CrystalStore
	// Idem remembers Idempotency-Keys of appended records. Optional.
	Idem IdempotencyStore

	// RecordsDefaultLimit applies when ListRecords gets limit <= 0.
	RecordsDefaultLimit int
	// RecordsMaxLimit caps the limit of ListRecords.
	RecordsMaxLimit int
	// TitleMaxLen caps crystal titles by rune length.
	TitleMaxLen int
	// UnitMaxLen caps unit labels by rune length.
	UnitMaxLen int
	// NoteMaxLen caps record notes by rune length; 0 disables the check.
	NoteMaxLen int
}

// NewCrystalService constructs a CrystalService with defaults matching the
// public API (50 records per list).
func NewCrystalService(crystals CrystalStore, idem IdempotencyStore) *CrystalService {
	return &CrystalService{
		Crystals:            crystals,
		Idem:                idem,
		RecordsDefaultLimit: 50,
		RecordsMaxLimit:     500,
		TitleMaxLen:         255,
		UnitMaxLen:          32,
		NoteMaxLen:          2000,
	}
}

// RecordInput is one contribution toward a crystal.
type RecordInput struct {
	Value ledger.Amount
	Note  string
	// IdempotencyKey, when set, makes a retried append return the first
	// result instead of adding a second record.
	IdempotencyKey string
}

// RecordWithSummary is the result of appending by room.
type RecordWithSummary struct {
	Record  *domain.Record `json:"record"`
	Summary ledger.Summary `json:"summary"`
}

// Create adds the crystal of a room.
//
// Semantics:
//   - title and unit are normalized and required; the target must fit
//     numeric(12,4): 8 whole digits and at most 4 decimals.
//   - A room holds at most one crystal: an existing one yields
//     ErrCrystalExists. The embedded store also enforces this with a unique
//     index, so a concurrent insert loses with the same error.
func (s *CrystalService) Create(ctx context.Context, a domain.Actor, roomID int64, g GoalInput) (*domain.Crystal, error) {
	ctx, span := otel.Tracer("services/CrystalService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", a.UserID),
			attribute.Int64("room.id", roomID),
		),
	)
	defer span.End()

	goal, err := validateGoal(g, s.TitleMaxLen, s.UnitMaxLen)
	if err != nil {
		return nil, err
	}

	if _, err := s.Crystals.CrystalByRoom(ctx, a, roomID); err == nil {
		return nil, ErrCrystalExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	c := &domain.Crystal{RoomID: roomID, Title: goal.Title, TargetValue: goal.Target, Unit: goal.Unit}
	if err := s.Crystals.CreateCrystal(ctx, a, c); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, ErrCrystalExists
		}
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Int64("room_id", roomID).Int64("crystal_id", c.ID).Msg("crystal created")
	return c, nil
}

// GetByRoom returns the crystal of a room.
func (s *CrystalService) GetByRoom(ctx context.Context, a domain.Actor, roomID int64) (*domain.Crystal, error) {
	c, err := s.Crystals.CrystalByRoom(ctx, a, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrRoomCrystalNotFound
		}
		return nil, err
	}
	return c, nil
}

// AddRecord appends a record to a crystal and returns the integer percent
// of the target that this single record represents: floor(value/target*100).
// The percent is not clamped, so an oversized record reports more than 100;
// a target <= 0 reports 0.
func (s *CrystalService) AddRecord(ctx context.Context, a domain.Actor, crystalID int64, in RecordInput) (int64, error) {
	ctx, span := otel.Tracer("services/CrystalService").Start(ctx, "AddRecord",
		trace.WithAttributes(
			attribute.String("user.id", a.UserID),
			attribute.Int64("crystal.id", crystalID),
		),
	)
	defer span.End()

	if err := s.validateRecord(in); err != nil {
		return 0, err
	}
	c, err := s.Crystals.GetCrystal(ctx, a, crystalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, ErrCrystalNotFound
		}
		return 0, err
	}
	rec, err := s.append(ctx, a, c, in, "crystal")
	if err != nil {
		return 0, err
	}
	return ledger.Percent(rec.Value, c.TargetValue), nil
}

// AddRecordByRoom appends a record to a room's crystal and returns the
// record together with the summary recomputed after the write.
func (s *CrystalService) AddRecordByRoom(ctx context.Context, a domain.Actor, roomID int64, in RecordInput) (*RecordWithSummary, error) {
	ctx, span := otel.Tracer("services/CrystalService").Start(ctx, "AddRecordByRoom",
		trace.WithAttributes(
			attribute.String("user.id", a.UserID),
			attribute.Int64("room.id", roomID),
		),
	)
	defer span.End()

	if err := s.validateRecord(in); err != nil {
		return nil, err
	}
	c, err := s.GetByRoom(ctx, a, roomID)
	if err != nil {
		return nil, err
	}
	rec, err := s.append(ctx, a, c, in, "room")
	if err != nil {
		return nil, err
	}
	sum, err := s.summarize(ctx, a, c)
	if err != nil {
		return nil, err
	}
	return &RecordWithSummary{Record: rec, Summary: sum}, nil
}

// Summary recomputes the progress of a crystal from all committed records.
func (s *CrystalService) Summary(ctx context.Context, a domain.Actor, crystalID int64) (*ledger.Summary, error) {
	ctx, span := otel.Tracer("services/CrystalService").Start(ctx, "Summary",
		trace.WithAttributes(attribute.Int64("crystal.id", crystalID)),
	)
	defer span.End()

	c, err := s.Crystals.GetCrystal(ctx, a, crystalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrCrystalNotFound
		}
		return nil, err
	}
	sum, err := s.summarize(ctx, a, c)
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

// SummaryByRoom recomputes the progress of a room's crystal.
func (s *CrystalService) SummaryByRoom(ctx context.Context, a domain.Actor, roomID int64) (*ledger.Summary, error) {
	ctx, span := otel.Tracer("services/CrystalService").Start(ctx, "SummaryByRoom",
		trace.WithAttributes(attribute.Int64("room.id", roomID)),
	)
	defer span.End()

	c, err := s.GetByRoom(ctx, a, roomID)
	if err != nil {
		return nil, err
	}
	sum, err := s.summarize(ctx, a, c)
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

// ListRecords returns a crystal's records, newest first. limit <= 0 means
// RecordsDefaultLimit; larger values are capped at RecordsMaxLimit. There is
// no cursor.
func (s *CrystalService) ListRecords(ctx context.Context, a domain.Actor, crystalID int64, limit int) ([]domain.Record, error) {
	ctx, span := otel.Tracer("services/CrystalService").Start(ctx, "ListRecords",
		trace.WithAttributes(
			attribute.Int64("crystal.id", crystalID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	limit = s.clampLimit(limit)
	recs, err := s.Crystals.ListRecords(ctx, a, crystalID, limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrCrystalNotFound
		}
		return nil, err
	}
	if recs == nil {
		recs = []domain.Record{}
	}
	return recs, nil
}

// RecordsETag returns a weak validator for a crystal's record list derived
// from the record count, the newest timestamp and the effective limit.
func (s *CrystalService) RecordsETag(ctx context.Context, a domain.Actor, crystalID int64, limit int) (string, error) {
	st, err := s.Crystals.RecordStats(ctx, a, crystalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", ErrCrystalNotFound
		}
		return "", err
	}
	var newest int64
	if st.Newest != nil {
		newest = st.Newest.UTC().UnixNano()
	}
	return fmt.Sprintf(`W/"r-%d-%d-%d-%d"`, crystalID, st.Count, newest, s.clampLimit(limit)), nil
}

func (s *CrystalService) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.RecordsDefaultLimit
		if limit <= 0 {
			limit = 50
		}
	}
	if s.RecordsMaxLimit > 0 && limit > s.RecordsMaxLimit {
		limit = s.RecordsMaxLimit
	}
	return limit
}

func (s *CrystalService) validateRecord(in RecordInput) error {
	if err := in.Value.Validate(); err != nil {
		return ErrValuePrecision
	}
	if s.NoteMaxLen > 0 && utf8.RuneCountInString(in.Note) > s.NoteMaxLen {
		return ErrNoteTooLong
	}
	return nil
}

// append writes one record, or returns the record an earlier request with
// the same Idempotency-Key produced. entry labels the metric.
func (s *CrystalService) append(ctx context.Context, a domain.Actor, c *domain.Crystal, in RecordInput, entry string) (*domain.Record, error) {
	scope := "crystal:" + strconv.FormatInt(c.ID, 10)
	useKey := s.Idem != nil && in.IdempotencyKey != ""

	if useKey {
		id, ok, err := s.Idem.Lookup(ctx, a.UserID, scope, in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if ok {
			rec, err := s.Crystals.GetRecord(ctx, a, id)
			if err == nil {
				zerolog.Ctx(ctx).Debug().Int64("record_id", id).Msg("idempotent replay")
				return rec, nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
		}
	}

	rec := &domain.Record{CrystalID: c.ID, Value: in.Value}
	if in.Note != "" {
		note := in.Note
		rec.Note = &note
	}
	if err := s.Crystals.AppendRecord(ctx, a, rec); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrCrystalNotFound
		}
		return nil, err
	}
	recordsAppended.WithLabelValues(entry).Inc()

	if useKey {
		if err := s.Idem.Remember(ctx, a.UserID, scope, in.IdempotencyKey, rec.ID, http.StatusCreated); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Int64("record_id", rec.ID).Msg("idempotency key not stored")
		}
	}
	return rec, nil
}

func (s *CrystalService) summarize(ctx context.Context, a domain.Actor, c *domain.Crystal) (ledger.Summary, error) {
	vals, err := s.Crystals.RecordValues(ctx, a, c.ID)
	if err != nil {
		return ledger.Summary{}, err
	}
	return ledger.Summarize(c.Goal(), vals), nil
}
