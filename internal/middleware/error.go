package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/smallbiznis/webauth/pkg/errors"
	"github.com/smallbiznis/webauth/pkg/httputil"
)

// ErrorHandler logs the errors attached to the context and answers with the
// last one when the handler wrote nothing.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		for _, e := range c.Errors {
			status := apperrors.StatusCode(e.Err)
			event := loggerFor(c).Warn()
			if status >= 500 {
				event = loggerFor(c).Error()
			}
			event.
				Err(e.Err).
				Int("status", status).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		httputil.RespondWithError(c, c.Errors.Last().Err)
	}
}
