// Room HTTP handlers.
//
// This file exposes REST endpoints for rooms and memberships:
//   - POST   /rooms/solo          (solo room with its crystal)
//   - POST   /rooms               (bare room)
//   - POST   /rooms/group         (group room with its crystal)
//   - POST   /rooms/join          (join by id and password)
//   - GET    /rooms/mine          (rooms of the caller)
//   - GET    /rooms/{id}          (one room)
//   - GET    /rooms/{id}/members  (members, visible to members only)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/crystarise-backend/internal/http/middleware"
	"github.com/tbourn/crystarise-backend/internal/ledger"
	"github.com/tbourn/crystarise-backend/internal/services"
)

//
// DTOs
//

// CreateSoloRequest is the JSON payload for creating a solo room.
type CreateSoloRequest struct {
	// Name optionally names the room; the title is used when empty.
	Name        string         `json:"name" example:"Morning runs"`
	Title       string         `json:"title" binding:"required" example:"Run 100 km"`
	TargetValue *ledger.Amount `json:"target_value" binding:"required" swaggertype:"string" example:"100.0000"`
	Unit        string         `json:"unit" binding:"required" example:"km"`
	Password    string         `json:"password" example:"secret"`
}

// CreateRoomRequest is the JSON payload for creating a bare room.
type CreateRoomRequest struct {
	Name     string `json:"name" binding:"required,max=255" example:"Book club"`
	Mode     string `json:"mode" binding:"required,room_mode" enums:"solo,group" example:"group"`
	Password string `json:"password" example:"secret"`
}

// CreateGroupRequest is the JSON payload for creating a group room with its
// crystal.
type CreateGroupRequest struct {
	Name        string         `json:"name" binding:"required,max=255" example:"Team steps"`
	Password    string         `json:"password" example:"secret"`
	Title       string         `json:"title" binding:"required" example:"1M steps"`
	TargetValue *ledger.Amount `json:"target_value" binding:"required" swaggertype:"string" example:"1000000"`
	Unit        string         `json:"unit" binding:"required" example:"steps"`
}

// JoinRoomRequest is the JSON payload for joining a room.
type JoinRoomRequest struct {
	RoomID   flexID `json:"room_id" binding:"required" swaggertype:"integer" example:"12"`
	Password string `json:"password" example:"secret"`
}

//
// Handlers
//

// CreateSoloRoom godoc
// @ID          createSoloRoom
// @Summary     Create a solo room
// @Description Creates a solo room, its crystal and the host membership in one step.
// @Tags        Rooms
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateSoloRequest  true  "Solo room payload"
// @Success     201   {object}  services.SoloRoom
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500   {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /rooms/solo [post]
func (h *Handlers) CreateSoloRoom(c *gin.Context) {
	var req CreateSoloRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err, "title, target_value and unit are required")
		return
	}
	in := services.SoloInput{
		GoalInput: services.GoalInput{Title: req.Title, Target: *req.TargetValue, Unit: req.Unit},
		Name:      req.Name,
		Password:  req.Password,
	}
	out, err := h.roomSvc.CreateSolo(c.Request.Context(), middleware.ActorFrom(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, out)
}

// CreateRoom godoc
// @ID          createRoom
// @Summary     Create a room
// @Description Creates a room without a crystal; the caller becomes its host.
// @Tags        Rooms
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateRoomRequest  true  "Room payload"
// @Success     201   {object}  domain.Room
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500   {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /rooms [post]
func (h *Handlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and mode (solo|group) are required")
		return
	}
	room, err := h.roomSvc.CreateRoom(c.Request.Context(), middleware.ActorFrom(c), req.Name, ledger.Mode(req.Mode), req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, room)
}

// CreateGroupRoom godoc
// @ID          createGroupRoom
// @Summary     Create a group room with its crystal
// @Tags        Rooms
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateGroupRequest  true  "Group room payload"
// @Success     201   {object}  services.GroupRoom
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500   {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /rooms/group [post]
func (h *Handlers) CreateGroupRoom(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err, "name, title, target_value and unit are required")
		return
	}
	g := services.GoalInput{Title: req.Title, Target: *req.TargetValue, Unit: req.Unit}
	out, err := h.roomSvc.CreateGroupRoom(c.Request.Context(), middleware.ActorFrom(c), req.Name, req.Password, g)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, out)
}

// JoinRoom godoc
// @ID          joinRoom
// @Summary     Join a room
// @Description Joins a room with its password. Joining a group room twice is a no-op;
// @Description a solo room refuses everyone once it has a member.
// @Tags        Rooms
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.JoinRoomRequest  true  "Join payload"
// @Success     200   {object}  services.JoinResult
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Wrong password"
// @Failure     404   {object}  handlers.ErrorResponse  "Room not found"
// @Failure     409   {object}  handlers.ErrorResponse  "Solo room occupied"
// @Failure     500   {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /rooms/join [post]
func (h *Handlers) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room_id must be a positive integer")
		return
	}
	res, err := h.roomSvc.Join(c.Request.Context(), middleware.ActorFrom(c), int64(req.RoomID), req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// MyRooms godoc
// @ID          myRooms
// @Summary     List my rooms
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.MyRoom
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /rooms/mine [get]
func (h *Handlers) MyRooms(c *gin.Context) {
	rooms, err := h.roomSvc.Mine(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, rooms)
}

// GetRoom godoc
// @ID          getRoom
// @Summary     Get a room
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Room ID"
// @Success     200  {object}  domain.Room
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /rooms/{id} [get]
func (h *Handlers) GetRoom(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room id must be a positive integer")
		return
	}
	room, err := h.roomSvc.Get(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, room)
}

// RoomMembers godoc
// @ID          roomMembers
// @Summary     List room members
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Room ID"
// @Success     200  {array}   domain.Membership
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Backend unavailable"
// @Router      /rooms/{id}/members [get]
func (h *Handlers) RoomMembers(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room id must be a positive integer")
		return
	}
	members, err := h.roomSvc.Members(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, members)
}
