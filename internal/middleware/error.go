package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
)

// ErrorHandler renders the last error attached to the context.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := apperrors.Wrap(c.Errors.Last().Err)

		entry := logrus.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"code":       appErr.Type,
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString(RequestIDKey),
		})
		if appErr.HTTPStatus >= 500 {
			entry.WithError(appErr).Error("Internal server error")
		} else {
			entry.Warn(appErr.Message)
		}

		if c.Writer.Written() {
			return
		}
		c.JSON(appErr.HTTPStatus, gin.H{
			"error":      appErr,
			"retryable":  appErr.Retryable(),
			"request_id": c.GetString(RequestIDKey),
		})
	}
}
