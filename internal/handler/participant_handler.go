package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ephemera/internal/services"
	"ephemera/internal/transport/httpdto"
)

type ParticipantHandler struct {
	service ParticipantService
}

func NewParticipantHandler(service ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{service: service}
}

// Join is the only participant route that does not need a pass: it is how a
// pass is obtained.
func (h *ParticipantHandler) Join(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	var req httpdto.JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID := uuid.Nil
	if req.UserID != "" {
		parsed, err := parseUUID(req.UserID)
		if err != nil {
			badRequest(c, "invalid user_id")
			return
		}
		userID = parsed
	}

	result, err := h.service.Join(c.Request.Context(), services.JoinInput{
		RoomID:   roomID,
		Password: req.Password,
		Username: req.Username,
		UserID:   userID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := httpdto.JoinRoomResponse{
		Room:             httpdto.FromRoom(result.Room),
		RequiresUsername: result.RequiresUsername,
	}
	if !result.RequiresUsername {
		p := httpdto.FromParticipant(result.Participant)
		resp.Participant = &p
		resp.Token = result.Token
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(resp))
}

func (h *ParticipantHandler) List(c *gin.Context) {
	pass, ok := requirePass(c)
	if !ok {
		return
	}
	ps, err := h.service.List(c.Request.Context(), pass.RoomID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromParticipants(ps)))
}

func (h *ParticipantHandler) SetPresence(c *gin.Context) {
	pass, ok := requirePass(c)
	if !ok {
		return
	}
	var req httpdto.PresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if c.Param("username") != pass.Username || !sameUser(pass, req.UserID) {
		forbidden(c, "presence may only be set for yourself")
		return
	}

	p, err := h.service.SetPresence(c.Request.Context(), pass.RoomID, pass.Username, pass.UserID, req.IsOnline)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromParticipant(p)))
}

func (h *ParticipantHandler) Kick(c *gin.Context) {
	pass, ok := requirePass(c)
	if !ok {
		return
	}
	var req httpdto.KickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if req.AdminUsername != pass.Username || !sameUser(pass, req.AdminUserID) {
		forbidden(c, "admin identity does not match pass")
		return
	}

	notice, err := h.service.Kick(c.Request.Context(), pass.RoomID, c.Param("username"), pass.Username, pass.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.KickResponse{Notice: notice}))
}

func (h *ParticipantHandler) Leave(c *gin.Context) {
	pass, ok := requirePass(c)
	if !ok {
		return
	}
	if c.Param("username") != pass.Username {
		forbidden(c, "you can only leave as yourself")
		return
	}
	if err := h.service.Leave(c.Request.Context(), pass.RoomID, pass.Username, pass.UserID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}
