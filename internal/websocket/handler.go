package websocket

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ephemera/internal/domain"
	"ephemera/internal/events"
	"ephemera/internal/services"
	"ephemera/internal/transport/httpdto"
	apperrors "ephemera/pkg/errors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// admitter rejects passes whose holder is no longer on the room's roster.
type admitter interface {
	Admit(ctx context.Context, pass services.Pass) (domain.Room, error)
}

// Handler upgrades room pass holders onto their room channel.
type Handler struct {
	auth   *services.AuthService
	rooms  admitter
	hub    *Hub
	relay  events.Publisher
	logger *WebSocketLogger
}

func NewHandler(auth *services.AuthService, rooms admitter, hub *Hub, relay events.Publisher, logger *WebSocketLogger) *Handler {
	if relay == nil {
		relay = hub
	}
	if logger == nil {
		logger = NewWebSocketLogger(nil)
	}
	return &Handler{auth: auth, rooms: rooms, hub: hub, relay: relay, logger: logger}
}

func (h *Handler) Connect(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("roomID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid room id", apperrors.CodeInvalidRequest))
		return
	}

	pass, err := h.auth.Parse(extractToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", apperrors.CodeUnauthorized))
		return
	}
	if pass.RoomID != roomID {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("pass is for another room", apperrors.CodeForbidden))
		return
	}
	if _, err := h.rooms.Admit(c.Request.Context(), pass); err != nil {
		c.JSON(apperrors.HTTPStatus(err), httpdto.ErrorResponseFrom(err))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", pass.UserID, "", err)
		return
	}

	client := NewClient(h.hub, conn, h.relay, roomID, pass.UserID, pass.Username, h.logger)
	h.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}
