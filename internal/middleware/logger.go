package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"blogauth/internal/logging"
)

func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
		}
		if u := UserUUID(c); u != "" {
			args = append(args, "user", u)
		}
		if len(c.Errors) > 0 {
			args = append(args, "err", c.Errors.String())
		}
		switch {
		case status >= 500:
			logger.Error(c.Request.Context(), "request", args...)
		case status >= 400:
			logger.Warn(c.Request.Context(), "request", args...)
		default:
			logger.Info(c.Request.Context(), "request", args...)
		}
	}
}
