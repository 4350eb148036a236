package supabase

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tbourn/crystarise-backend/internal/domain"
	"github.com/tbourn/crystarise-backend/internal/ledger"
)

// SoloRoomProcedure is the stored procedure that creates a solo room, its
// crystal and the host membership atomically.
const SoloRoomProcedure = "create_solo_room_with_crystal"

// Store implements the storage contracts on PostgREST. Row visibility is
// decided by the hosted row policies; a row the actor cannot see is reported
// as not found.
//
// Unlike the embedded store, CreateRoom performs sequential writes with no
// rollback: a failure after the room insert leaves the room behind.
type Store struct {
	c *Client
}

// NewStore returns a Store over c.
func NewStore(c *Client) *Store { return &Store{c: c} }

// roomRow is the wire shape of a rooms row. It carries the password, which
// domain.Room never serializes.
type roomRow struct {
	ID        int64       `json:"room_id"`
	Name      string      `json:"name"`
	Mode      ledger.Mode `json:"mode"`
	Password  *string     `json:"password"`
	HostID    string      `json:"host_id"`
	CreatedAt time.Time   `json:"created_at"`
}

func (r roomRow) room() domain.Room {
	out := domain.Room{ID: r.ID, Name: r.Name, Mode: r.Mode, HostID: r.HostID, CreatedAt: r.CreatedAt}
	if r.Password != nil {
		out.Password = *r.Password
	}
	return out
}

func eq(v any) string { return "eq." + toString(v) }

func toString(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

func (s *Store) rest(ctx context.Context, a domain.Actor, method, table string, q url.Values, body any, v any, prefer ...string) error {
	res, err := s.c.do(ctx, request{method: method, path: "/rest/v1/" + table, query: q, body: body, token: a.Token, prefer: prefer})
	if err != nil {
		return err
	}
	return decode(res, v)
}

// CreateSoloRoom invokes the solo-room procedure. Deployments name the
// output columns either room_id/crystal_id or room_id_out/crystal_id_out;
// both are accepted.
func (s *Store) CreateSoloRoom(ctx context.Context, a domain.Actor, in domain.NewSoloRoom) (domain.SoloRoomIDs, error) {
	params := map[string]any{
		"p_title":    in.Title,
		"p_target":   in.Target.String(),
		"p_unit":     in.Unit,
		"p_password": nullable(in.Password),
		"p_name":     nullable(in.Name),
	}
	res, err := s.c.do(ctx, request{method: http.MethodPost, path: "/rest/v1/rpc/" + SoloRoomProcedure, body: params, token: a.Token})
	if err != nil {
		return domain.SoloRoomIDs{}, err
	}
	var raw json.RawMessage
	if err := decode(res, &raw); err != nil {
		return domain.SoloRoomIDs{}, err
	}
	return parseSoloRoomIDs(raw)
}

type soloRoomOut struct {
	RoomID       *int64 `json:"room_id"`
	CrystalID    *int64 `json:"crystal_id"`
	RoomIDOut    *int64 `json:"room_id_out"`
	CrystalIDOut *int64 `json:"crystal_id_out"`
}

func parseSoloRoomIDs(raw json.RawMessage) (domain.SoloRoomIDs, error) {
	var rows []soloRoomOut
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var one soloRoomOut
		if err := json.Unmarshal(raw, &one); err != nil {
			return domain.SoloRoomIDs{}, domain.Unavailable("decode procedure result", err)
		}
		rows = append(rows, one)
	} else if err := json.Unmarshal(raw, &rows); err != nil {
		return domain.SoloRoomIDs{}, domain.Unavailable("decode procedure result", err)
	}
	if len(rows) == 0 {
		return domain.SoloRoomIDs{}, domain.Unavailable("procedure returned no data", nil)
	}
	r := rows[0]
	room := firstID(r.RoomID, r.RoomIDOut)
	crystal := firstID(r.CrystalID, r.CrystalIDOut)
	if room == 0 || crystal == 0 {
		return domain.SoloRoomIDs{}, domain.Unavailable("procedure returned no ids", nil)
	}
	return domain.SoloRoomIDs{RoomID: room, CrystalID: crystal}, nil
}

func firstID(ids ...*int64) int64 {
	for _, id := range ids {
		if id != nil && *id != 0 {
			return *id
		}
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateRoom inserts the room, then the host membership, then the optional
// crystal. There is no rollback; when a later step fails the room is left
// behind and logged.
func (s *Store) CreateRoom(ctx context.Context, a domain.Actor, room *domain.Room, crystal *domain.Crystal) error {
	var rows []roomRow
	body := map[string]any{
		"name":     room.Name,
		"mode":     room.Mode,
		"password": room.Password,
		"host_id":  a.UserID,
	}
	if err := s.rest(ctx, a, http.MethodPost, "rooms", nil, body, &rows, "return=representation"); err != nil {
		return err
	}
	if len(rows) == 0 {
		return domain.Unavailable("room insert returned no rows", nil)
	}
	*room = rows[0].room()

	orphan := func(step string, err error) error {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("room_id", room.ID).Str("step", step).
			Msg("room created without rollback after a failed step")
		return err
	}
	if err := s.AddMember(ctx, a, room.ID, ledger.RoleHost); err != nil {
		return orphan("host_membership", err)
	}
	if crystal == nil {
		return nil
	}
	crystal.RoomID = room.ID
	if err := s.CreateCrystal(ctx, a, crystal); err != nil {
		return orphan("crystal", err)
	}
	return nil
}

// GetRoom fetches a room by id.
func (s *Store) GetRoom(ctx context.Context, a domain.Actor, id int64) (*domain.Room, error) {
	var rows []roomRow
	q := url.Values{"select": {"*"}, "room_id": {eq(id)}, "limit": {"1"}}
	if err := s.rest(ctx, a, http.MethodGet, "rooms", q, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.NotFound("room not found")
	}
	r := rows[0].room()
	return &r, nil
}

// Occupants returns the user ids of a room's members visible to the actor.
// The read uses the joiner's token, so the solo capacity check only sees
// occupants when the room_members policy lets a caller read the member rows
// of a room it can look up by id. Under a members-only policy a joiner sees
// no rows and an occupied solo room is joined instead of refused.
func (s *Store) Occupants(ctx context.Context, a domain.Actor, roomID int64) ([]string, error) {
	var rows []struct {
		UserID string `json:"user_id"`
	}
	q := url.Values{"select": {"user_id"}, "room_id": {eq(roomID)}}
	if err := s.rest(ctx, a, http.MethodGet, "room_members", q, nil, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	return ids, nil
}

// AddMember upserts the actor's membership, ignoring an existing row.
func (s *Store) AddMember(ctx context.Context, a domain.Actor, roomID int64, role ledger.Role) error {
	body := map[string]any{
		"room_id": roomID,
		"user_id": a.UserID,
		"role":    role,
	}
	q := url.Values{"on_conflict": {"room_id,user_id"}}
	return s.rest(ctx, a, http.MethodPost, "room_members", q, body, nil,
		"resolution=ignore-duplicates", "return=minimal")
}

// ListMembers returns the members of a room. The actor must be one of them.
func (s *Store) ListMembers(ctx context.Context, a domain.Actor, roomID int64) ([]domain.Membership, error) {
	var rows []domain.Membership
	q := url.Values{"select": {"room_id,user_id,role,joined_at"}, "room_id": {eq(roomID)}, "order": {"joined_at.asc,user_id.asc"}}
	if err := s.rest(ctx, a, http.MethodGet, "room_members", q, nil, &rows); err != nil {
		return nil, err
	}
	for _, m := range rows {
		if m.UserID == a.UserID {
			return rows, nil
		}
	}
	return nil, domain.NotFound("room not found")
}

// ListMyRooms returns the actor's rooms with the actor's role, using the
// rooms embedding of room_members.
func (s *Store) ListMyRooms(ctx context.Context, a domain.Actor) ([]domain.MyRoom, error) {
	var rows []struct {
		Role     ledger.Role `json:"role"`
		JoinedAt time.Time   `json:"joined_at"`
		Room     *roomRow    `json:"rooms"`
	}
	q := url.Values{
		"select":  {"role,joined_at,rooms(*)"},
		"user_id": {eq(a.UserID)},
		"order":   {"joined_at.desc"},
	}
	if err := s.rest(ctx, a, http.MethodGet, "room_members", q, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.MyRoom, 0, len(rows))
	for _, r := range rows {
		if r.Room == nil {
			continue
		}
		out = append(out, domain.MyRoom{Room: r.Room.room(), Role: r.Role, JoinedAt: r.JoinedAt})
	}
	return out, nil
}

// CrystalByRoom returns the first crystal of a room.
func (s *Store) CrystalByRoom(ctx context.Context, a domain.Actor, roomID int64) (*domain.Crystal, error) {
	var rows []domain.Crystal
	q := url.Values{"select": {"*"}, "room_id": {eq(roomID)}, "order": {"crystal_id.asc"}, "limit": {"1"}}
	if err := s.rest(ctx, a, http.MethodGet, "crystals", q, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.NotFound("crystal not found for this room")
	}
	return &rows[0], nil
}

// GetCrystal fetches one crystal as a single object; zero rows come back as
// PGRST116 and map to not found.
func (s *Store) GetCrystal(ctx context.Context, a domain.Actor, id int64) (*domain.Crystal, error) {
	q := url.Values{"select": {"*"}, "crystal_id": {eq(id)}}
	res, err := s.c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/crystals", query: q, token: a.Token, object: true})
	if err != nil {
		return nil, err
	}
	var c domain.Crystal
	if err := decode(res, &c); err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, domain.NotFound("crystal not found")
		}
		return nil, err
	}
	return &c, nil
}

// CreateCrystal inserts a crystal. The target travels as a string.
func (s *Store) CreateCrystal(ctx context.Context, a domain.Actor, c *domain.Crystal) error {
	var rows []domain.Crystal
	body := map[string]any{
		"room_id":      c.RoomID,
		"title":        c.Title,
		"target_value": c.TargetValue.String(),
		"unit":         c.Unit,
	}
	if err := s.rest(ctx, a, http.MethodPost, "crystals", nil, body, &rows, "return=representation"); err != nil {
		return err
	}
	if len(rows) == 0 {
		return domain.Unavailable("crystal insert returned no rows", nil)
	}
	*c = rows[0]
	return nil
}

// AppendRecord inserts a record by the actor. The user id comes from the
// verified actor, never from the request body.
func (s *Store) AppendRecord(ctx context.Context, a domain.Actor, r *domain.Record) error {
	var rows []domain.Record
	body := map[string]any{
		"crystal_id": r.CrystalID,
		"user_id":    a.UserID,
		"value":      r.Value.String(),
		"note":       r.Note,
	}
	if err := s.rest(ctx, a, http.MethodPost, "crystal_records", nil, body, &rows, "return=representation"); err != nil {
		return err
	}
	if len(rows) == 0 {
		return domain.Unavailable("record insert returned no rows", nil)
	}
	*r = rows[0]
	return nil
}

// GetRecord fetches one record.
func (s *Store) GetRecord(ctx context.Context, a domain.Actor, id int64) (*domain.Record, error) {
	var rows []domain.Record
	q := url.Values{"select": {"*"}, "record_id": {eq(id)}, "limit": {"1"}}
	if err := s.rest(ctx, a, http.MethodGet, "crystal_records", q, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.NotFound("record not found")
	}
	return &rows[0], nil
}

// RecordValues returns every record value of a crystal.
func (s *Store) RecordValues(ctx context.Context, a domain.Actor, crystalID int64) ([]ledger.Amount, error) {
	var rows []struct {
		Value ledger.Amount `json:"value"`
	}
	q := url.Values{"select": {"value"}, "crystal_id": {eq(crystalID)}}
	if err := s.rest(ctx, a, http.MethodGet, "crystal_records", q, nil, &rows); err != nil {
		return nil, err
	}
	vals := make([]ledger.Amount, 0, len(rows))
	for _, r := range rows {
		vals = append(vals, r.Value)
	}
	return vals, nil
}

// ListRecords returns a crystal's records newest first.
func (s *Store) ListRecords(ctx context.Context, a domain.Actor, crystalID int64, limit int) ([]domain.Record, error) {
	rows := []domain.Record{}
	q := url.Values{
		"select":     {"*"},
		"crystal_id": {eq(crystalID)},
		"order":      {"created_at.desc,record_id.desc"},
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if err := s.rest(ctx, a, http.MethodGet, "crystal_records", q, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// RecordStats returns the record count from Content-Range and the newest
// created_at.
func (s *Store) RecordStats(ctx context.Context, a domain.Actor, crystalID int64) (domain.RecordStats, error) {
	q := url.Values{
		"select":     {"created_at"},
		"crystal_id": {eq(crystalID)},
		"order":      {"created_at.desc"},
		"limit":      {"1"},
	}
	res, err := s.c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/crystal_records", query: q, token: a.Token, prefer: []string{"count=exact"}})
	if err != nil {
		return domain.RecordStats{}, err
	}
	var rows []struct {
		CreatedAt time.Time `json:"created_at"`
	}
	if err := decode(res, &rows); err != nil {
		return domain.RecordStats{}, err
	}
	st := domain.RecordStats{Count: contentRangeTotal(res.header.Get("Content-Range"), len(rows))}
	if len(rows) > 0 {
		t := rows[0].CreatedAt
		st.Newest = &t
	}
	return st, nil
}

// contentRangeTotal parses "0-0/12" or "*/0"; fallback is used when the
// header is missing or has no total.
func contentRangeTotal(h string, fallback int) int64 {
	_, total, ok := strings.Cut(h, "/")
	if !ok || total == "*" {
		return int64(fallback)
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return int64(fallback)
	}
	return n
}
