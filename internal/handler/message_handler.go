package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ephemera/internal/domain"
	"ephemera/internal/services"
	"ephemera/internal/transport/httpdto"
)

type MessageHandler struct {
	service MessageService
}

func NewMessageHandler(service MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

func (h *MessageHandler) Append(c *gin.Context) {
	pass, ok := requirePass(c)
	if !ok {
		return
	}
	var req httpdto.AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if req.Username != pass.Username || !sameUser(pass, req.UserID) {
		forbidden(c, "messages may only be posted as yourself")
		return
	}

	msg, err := h.service.Append(c.Request.Context(), services.AppendInput{
		RoomID:   pass.RoomID,
		Username: pass.Username,
		UserID:   pass.UserID,
		Body:     req.Body,
		Kind:     domain.MessageKind(req.Kind),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(msg))
}

func (h *MessageHandler) List(c *gin.Context) {
	pass, ok := requirePass(c)
	if !ok {
		return
	}
	limit, err := parseInt(c.Query("limit"))
	if err != nil {
		badRequest(c, "invalid limit")
		return
	}
	items, err := h.service.List(c.Request.Context(), pass.RoomID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []domain.ChatMessage{}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.MessageListResponse{Messages: items}))
}
