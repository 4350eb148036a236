// Package services defines the business logic for rooms, crystals, records
// and profiles. This file centralizes the service-level error values so that
// they can be consistently returned by service methods and checked by callers.
//
// Every value is a *domain.Error, so handlers translate them into HTTP
// status codes by kind (errors.Is against the domain sentinels) while the
// message stays specific to the failed rule.
package services

import "github.com/tbourn/crystarise-backend/internal/domain"

// Room-related errors.
var (
	// ErrRoomNotFound indicates that the room does not exist or is not
	// visible to the caller.
	ErrRoomNotFound = domain.NotFound("room not found")

	// ErrWrongPassword is returned when a join secret does not match.
	ErrWrongPassword = domain.Unauthorized("invalid room password")

	// ErrRoomOccupied is returned when joining a solo room that already has
	// a member, including its own host.
	ErrRoomOccupied = domain.Conflict("solo room is already occupied")

	// ErrInvalidMode is returned for a room mode other than solo or group.
	ErrInvalidMode = domain.Invalid("mode must be solo or group")

	// ErrNameRequired is returned when a room is created without a name.
	ErrNameRequired = domain.Invalid("name is required")
)

// Crystal and record errors.
var (
	// ErrCrystalNotFound indicates that the crystal does not exist or is not
	// visible to the caller.
	ErrCrystalNotFound = domain.NotFound("crystal not found")

	// ErrRoomCrystalNotFound is returned when a room has no crystal yet.
	ErrRoomCrystalNotFound = domain.NotFound("crystal not found for this room")

	// ErrCrystalExists is returned when a room already has its crystal.
	ErrCrystalExists = domain.Conflict("crystal already exists for this room")

	// ErrTitleRequired is returned for an empty crystal title.
	ErrTitleRequired = domain.Invalid("title is required")

	// ErrUnitRequired is returned for an empty unit label.
	ErrUnitRequired = domain.Invalid("unit is required")

	// ErrTargetPrecision is returned when a target does not fit 8 whole
	// digits and 4 decimal places.
	ErrTargetPrecision = domain.Invalid("target_value exceeds 8 whole digits or 4 decimal places")

	// ErrValuePrecision is returned when a record value does not fit 8 whole
	// digits and 4 decimal places.
	ErrValuePrecision = domain.Invalid("value exceeds 8 whole digits or 4 decimal places")

	// ErrNoteTooLong is returned when a record note exceeds the configured cap.
	ErrNoteTooLong = domain.Invalid("note too long")
)
