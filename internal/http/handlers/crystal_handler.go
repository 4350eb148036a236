// Crystal HTTP handlers.
//
// This file exposes REST endpoints for crystals, records and summaries:
//   - POST   /crystals                                (create for a room)
//   - GET    /crystals/by-room/{room_id}              (crystal of a room)
//   - POST   /crystals/{id}/records                   (append, returns percent)
//   - POST   /crystals/by-room/{room_id}/records      (append, returns record + summary)
//   - GET    /crystals/{id}/summary                   (summary by crystal)
//   - GET    /crystals/by-room/{room_id}/summary      (summary by room)
//   - GET    /crystals/{id}/records                   (newest first, ETag support)
//
// The two append endpoints return deliberately different shapes: the bare
// integer percent of the single record, or the record with the full summary.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/crystarise-backend/internal/http/middleware"
	"github.com/tbourn/crystarise-backend/internal/ledger"
	"github.com/tbourn/crystarise-backend/internal/services"
	"github.com/tbourn/crystarise-backend/internal/utils"
)

//
// DTOs
//

// CreateCrystalRequest is the JSON payload for creating a room's crystal.
type CreateCrystalRequest struct {
	RoomID      flexID         `json:"room_id" binding:"required" swaggertype:"integer" example:"12"`
	Title       string         `json:"title" binding:"required" example:"Read 24 books"`
	TargetValue *ledger.Amount `json:"target_value" binding:"required" swaggertype:"string" example:"24"`
	Unit        string         `json:"unit" binding:"required" example:"books"`
}

// AddRecordRequest is the JSON payload for appending a record.
type AddRecordRequest struct {
	Value *ledger.Amount `json:"value" binding:"required" swaggertype:"string" example:"2.5"`
	Note  *string        `json:"note" example:"evening session"`
}

func (r AddRecordRequest) input(c *gin.Context) services.RecordInput {
	in := services.RecordInput{Value: *r.Value}
	if r.Note != nil {
		in.Note = *r.Note
	}
	in.IdempotencyKey, _ = middleware.GetIdempotencyKey(c)
	return in
}

//
// Handlers
//

// CreateCrystal godoc
// @ID          createCrystal
// @Summary     Create a room's crystal
// @Description A room holds at most one crystal.
// @Tags        Crystals
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateCrystalRequest  true  "Crystal payload"
// @Success     201   {object}  domain.Crystal
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "Room not found"
// @Failure     409   {object}  handlers.ErrorResponse  "Crystal already exists"
// @Failure     500   {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /crystals [post]
func (h *Handlers) CreateCrystal(c *gin.Context) {
	var req CreateCrystalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err, "room_id, title, target_value and unit are required")
		return
	}
	g := services.GoalInput{Title: req.Title, Target: *req.TargetValue, Unit: req.Unit}
	cr, err := h.crystalSvc.Create(c.Request.Context(), middleware.ActorFrom(c), int64(req.RoomID), g)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, cr)
}

// CrystalByRoom godoc
// @ID          crystalByRoom
// @Summary     Get the crystal of a room
// @Tags        Crystals
// @Produce     json
// @Security    BearerAuth
// @Param       room_id  path      int  true  "Room ID"
// @Success     200      {object}  domain.Crystal
// @Failure     400      {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404      {object}  handlers.ErrorResponse  "Crystal not found"
// @Failure     500      {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /crystals/by-room/{room_id} [get]
func (h *Handlers) CrystalByRoom(c *gin.Context) {
	roomID, valid := pathID(c, "room_id")
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room id must be a positive integer")
		return
	}
	cr, err := h.crystalSvc.GetByRoom(c.Request.Context(), middleware.ActorFrom(c), roomID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, cr)
}

// AddRecord godoc
// @ID          addRecord
// @Summary     Append a record to a crystal
// @Description Returns floor(value / target * 100) for this record alone. The value is
// @Description not clamped and may exceed 100. A repeated Idempotency-Key replays the
// @Description first result.
// @Tags        Crystals
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path      int                          true   "Crystal ID"
// @Param       Idempotency-Key  header    string                       false  "Idempotency key"
// @Param       body             body      handlers.AddRecordRequest    true   "Record payload"
// @Success     201              {integer} int  "Percent of the target"
// @Failure     400              {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404              {object}  handlers.ErrorResponse  "Crystal not found"
// @Failure     500              {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /crystals/{id}/records [post]
func (h *Handlers) AddRecord(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "crystal id must be a positive integer")
		return
	}
	var req AddRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err, "value is required")
		return
	}
	pct, err := h.crystalSvc.AddRecord(c.Request.Context(), middleware.ActorFrom(c), id, req.input(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, pct)
}

// AddRecordByRoom godoc
// @ID          addRecordByRoom
// @Summary     Append a record to a room's crystal
// @Description Returns the stored record and the summary recomputed after the write.
// @Tags        Crystals
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       room_id          path      int                          true   "Room ID"
// @Param       Idempotency-Key  header    string                       false  "Idempotency key"
// @Param       body             body      handlers.AddRecordRequest    true   "Record payload"
// @Success     201              {object}  services.RecordWithSummary
// @Failure     400              {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404              {object}  handlers.ErrorResponse  "Crystal not found for this room"
// @Failure     500              {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /crystals/by-room/{room_id}/records [post]
func (h *Handlers) AddRecordByRoom(c *gin.Context) {
	roomID, valid := pathID(c, "room_id")
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room id must be a positive integer")
		return
	}
	var req AddRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err, "value is required")
		return
	}
	out, err := h.crystalSvc.AddRecordByRoom(c.Request.Context(), middleware.ActorFrom(c), roomID, req.input(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, out)
}

// CrystalSummary godoc
// @ID          crystalSummary
// @Summary     Summarize a crystal
// @Description Total of all records and the progress rate clamped to [0, 1].
// @Tags        Crystals
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Crystal ID"
// @Success     200  {object}  ledger.Summary
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Crystal not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /crystals/{id}/summary [get]
func (h *Handlers) CrystalSummary(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "crystal id must be a positive integer")
		return
	}
	sum, err := h.crystalSvc.Summary(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}

// SummaryByRoom godoc
// @ID          summaryByRoom
// @Summary     Summarize a room's crystal
// @Tags        Crystals
// @Produce     json
// @Security    BearerAuth
// @Param       room_id  path      int  true  "Room ID"
// @Success     200      {object}  ledger.Summary
// @Failure     400      {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404      {object}  handlers.ErrorResponse  "Crystal not found for this room"
// @Failure     500      {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /crystals/by-room/{room_id}/summary [get]
func (h *Handlers) SummaryByRoom(c *gin.Context) {
	roomID, valid := pathID(c, "room_id")
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room id must be a positive integer")
		return
	}
	sum, err := h.crystalSvc.SummaryByRoom(c.Request.Context(), middleware.ActorFrom(c), roomID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}

// ListRecords godoc
// @ID          listRecords
// @Summary     List a crystal's records
// @Description Newest first, truncated to limit (default 50). Supports weak ETag via
// @Description If-None-Match and may return 304.
// @Tags        Crystals
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    int     true   "Crystal ID"
// @Param       limit          query   int     false  "Maximum records"  minimum(1) default(50)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {array}   domain.Record
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Crystal not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /crystals/{id}/records [get]
func (h *Handlers) ListRecords(c *gin.Context) {
	ctx := c.Request.Context()
	a := middleware.ActorFrom(c)
	id, valid := pathID(c, "id")
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "crystal id must be a positive integer")
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), 0)

	// ETag pre-check (best effort).
	if etag, err := h.crystalSvc.RecordsETag(ctx, a, id, limit); err == nil && notModified(c, etag) {
		return
	}

	recs, err := h.crystalSvc.ListRecords(ctx, a, id, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, recs)
}
