package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger logs one line per request. Bodies are never logged: the forms carry
// passwords.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		event := loggerFor(c).Info()
		msg := "Request processed"
		switch {
		case status >= 500:
			event = loggerFor(c).Error()
			msg = "Server error"
		case status >= 400:
			event = loggerFor(c).Warn()
			msg = "Client error"
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("route", c.FullPath()).
			Str("ip", c.ClientIP()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}

// loggerFor returns the request logger set by RequestID, or the global one.
func loggerFor(c *gin.Context) *zerolog.Logger {
	l := zerolog.Ctx(c.Request.Context())
	if l.GetLevel() == zerolog.Disabled {
		return &log.Logger
	}
	return l
}
