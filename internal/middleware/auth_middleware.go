package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ephemera/internal/domain"
	"ephemera/internal/services"
	"ephemera/internal/transport/httpdto"
	apperrors "ephemera/pkg/errors"
	"ephemera/pkg/logger"
)

const passKey = "room_pass"

// RoomPassMiddleware requires a room pass. When the route carries :roomID the
// pass must have been issued for that room.
func RoomPassMiddleware(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		pass, err := auth.Parse(extractToken(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", apperrors.CodeUnauthorized))
			c.Abort()
			return
		}

		if raw := c.Param("roomID"); raw != "" {
			roomID, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid room id", apperrors.CodeInvalidRequest))
				c.Abort()
				return
			}
			if roomID != pass.RoomID {
				c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("pass is for another room", apperrors.CodeForbidden))
				c.Abort()
				return
			}
		}

		c.Set(passKey, pass)
		ctx := context.WithValue(c.Request.Context(), logger.UserIdKey, pass.UserID.String())
		ctx = context.WithValue(ctx, logger.RoomIdKey, pass.RoomID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Admitter decides whether a pass holder still belongs to its room.
type Admitter interface {
	Admit(ctx context.Context, pass services.Pass) (domain.Room, error)
}

// RosterMemberMiddleware runs after RoomPassMiddleware and rejects holders
// that were kicked or left: their pass stays valid until the room expires.
func RosterMemberMiddleware(admit Admitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		pass, ok := PassFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", apperrors.CodeUnauthorized))
			c.Abort()
			return
		}
		if _, err := admit.Admit(c.Request.Context(), pass); err != nil {
			c.JSON(apperrors.HTTPStatus(err), httpdto.ErrorResponseFrom(err))
			c.Abort()
			return
		}
		c.Next()
	}
}

// PassFrom returns the room pass stored by RoomPassMiddleware.
func PassFrom(c *gin.Context) (services.Pass, bool) {
	v, ok := c.Get(passKey)
	if !ok {
		return services.Pass{}, false
	}
	pass, ok := v.(services.Pass)
	return pass, ok
}

func extractToken(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return c.Query("token")
}
