package ledger

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Mode is the capacity mode of a room.
type Mode string

const (
	ModeSolo  Mode = "solo"
	ModeGroup Mode = "group"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeSolo || m == ModeGroup }

// Role is a member's role inside a room.
type Role string

const (
	RoleHost   Role = "host"
	RoleMember Role = "member"
)

var (
	// ErrWrongPassword means the join secret did not match.
	ErrWrongPassword = errors.New("room password does not match")
	// ErrRoomOccupied means a solo room already has its one member.
	ErrRoomOccupied = errors.New("solo room is already occupied")
)

// JoinOutcome tells the caller what a successful join has to write.
type JoinOutcome int

const (
	// JoinInsert: the user is new to the room; write a member row.
	JoinInsert JoinOutcome = iota + 1
	// JoinNoop: the user is already a member; nothing changes.
	JoinNoop
)

// Room is the subset of a room the join rules need.
type Room struct {
	Mode   Mode
	Secret string // bcrypt hash, or a legacy plain value
}

// DecideJoin applies the membership rules in order: password, then solo
// capacity, then idempotency. members lists the user ids already in the room.
//
// A solo room with any member refuses every join, including a re-join by
// that same member.
func DecideJoin(room Room, password, userID string, members []string) (JoinOutcome, error) {
	if !MatchSecret(room.Secret, password) {
		return 0, ErrWrongPassword
	}
	if room.Mode == ModeSolo && len(members) > 0 {
		return 0, ErrRoomOccupied
	}
	for _, m := range members {
		if m == userID {
			return JoinNoop, nil
		}
	}
	return JoinInsert, nil
}

// HashSecret hashes a room password for storage. An empty password stays
// empty so password-less rooms keep matching an empty join secret.
func HashSecret(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// MatchSecret compares a stored secret against a candidate. Rooms created by
// the stored procedure keep the password as given, so non-bcrypt values are
// compared in constant time.
func MatchSecret(stored, candidate string) bool {
	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

func isBcrypt(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
