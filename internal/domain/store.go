package domain

import (
	"time"

	"github.com/tbourn/crystarise-backend/internal/ledger"
)

// NewSoloRoom is the input of the atomic solo-room procedure, which creates
// the room, its crystal and the host membership together.
type NewSoloRoom struct {
	Name     string
	Title    string
	Target   ledger.Amount
	Unit     string
	Password string
}

// SoloRoomIDs identifies what the solo-room procedure created.
type SoloRoomIDs struct {
	RoomID    int64 `json:"room_id"`
	CrystalID int64 `json:"crystal_id"`
}

// RecordStats is the cheap fingerprint of a crystal's record list used for
// conditional GETs. Newest is nil when there are no records.
type RecordStats struct {
	Count  int64
	Newest *time.Time
}
