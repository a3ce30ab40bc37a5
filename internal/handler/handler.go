package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ephemera/internal/domain"
	"ephemera/internal/middleware"
	"ephemera/internal/services"
	"ephemera/internal/transport/httpdto"
	apperrors "ephemera/pkg/errors"
)

type RoomService interface {
	Create(ctx context.Context, in services.CreateRoomInput) (domain.Room, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Room, error)
	Verify(ctx context.Context, id uuid.UUID, password string) (domain.Room, error)
}

type ParticipantService interface {
	Join(ctx context.Context, in services.JoinInput) (services.JoinResult, error)
	List(ctx context.Context, roomID uuid.UUID) ([]domain.Participant, error)
	SetPresence(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID, online bool) (domain.Participant, error)
	Kick(ctx context.Context, roomID uuid.UUID, target, admin string, adminUserID uuid.UUID) (domain.ChatMessage, error)
	Leave(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID) error
}

type MessageService interface {
	Append(ctx context.Context, in services.AppendInput) (domain.ChatMessage, error)
	List(ctx context.Context, roomID uuid.UUID, limit int) ([]domain.ChatMessage, error)
}

type DocumentService interface {
	Get(ctx context.Context, roomID uuid.UUID, name string) (domain.Document, error)
	Create(ctx context.Context, in services.CreateDocumentInput) (domain.Document, bool, error)
	Update(ctx context.Context, roomID, id uuid.UUID, patch domain.DocumentPatch) (domain.Document, error)
	Delete(ctx context.Context, roomID, id uuid.UUID) error
}

func writeError(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), httpdto.ErrorResponseFrom(err))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(msg, apperrors.CodeInvalidRequest))
}

func forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, httpdto.NewErrorResponse(msg, apperrors.CodeForbidden))
}

func roomParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("roomID"))
	if err != nil {
		badRequest(c, "invalid room id")
		return uuid.Nil, false
	}
	return id, true
}

// requirePass returns the caller's room pass. RoomPassMiddleware guarantees
// it on protected routes, so a miss is a wiring error.
func requirePass(c *gin.Context) (services.Pass, bool) {
	pass, ok := middleware.PassFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", apperrors.CodeUnauthorized))
		return services.Pass{}, false
	}
	return pass, true
}

// sameUser reports whether a body supplied user id (possibly empty) matches the pass.
func sameUser(pass services.Pass, raw string) bool {
	if raw == "" {
		return true
	}
	id, err := uuid.Parse(raw)
	return err == nil && id == pass.UserID
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}

func parseInt(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
