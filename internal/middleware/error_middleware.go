package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ephemera/internal/transport/httpdto"
	apperrors "ephemera/pkg/errors"
	"ephemera/pkg/logger"
)

// ErrorHandler renders the last error attached with c.Error when the handler
// did not write a response itself.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := apperrors.HTTPStatus(err)
		if l != nil && status >= 500 {
			l.WithContext(c.Request.Context()).Error("request error", zap.Error(err))
		}
		if c.Writer.Written() {
			return
		}
		c.JSON(status, httpdto.ErrorResponseFrom(err))
	}
}
