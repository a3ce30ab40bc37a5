package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ephemera/internal/domain"
	"ephemera/internal/services"
	"ephemera/internal/transport/httpdto"
	apperrors "ephemera/pkg/errors"
)

type RoomHandler struct {
	service RoomService
}

func NewRoomHandler(service RoomService) *RoomHandler {
	return &RoomHandler{service: service}
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req httpdto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	room, err := h.service.Create(c.Request.Context(), services.CreateRoomInput{
		Name:     req.Name,
		Password: req.Password,
		Kind:     domain.RoomKind(req.Kind),
		TTL:      time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.FromRoom(room)))
}

// Get answers 404 for unknown rooms and 410 for expired or closed ones.
func (h *RoomHandler) Get(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	room, err := h.service.Get(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !room.Accessible(time.Now()) {
		c.JSON(http.StatusGone, httpdto.NewErrorResponse("room has expired", apperrors.CodeGone))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromRoom(room)))
}

func (h *RoomHandler) Verify(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	var req httpdto.VerifyRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	room, err := h.service.Verify(c.Request.Context(), roomID, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromRoom(room)))
}
