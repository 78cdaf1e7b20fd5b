package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/smallbiznis/webauth/pkg/errors"
	"github.com/smallbiznis/webauth/pkg/httputil"
)

// SizeLimitConfig represents size limit configuration
type SizeLimitConfig struct {
	MaxBodySize   int64
	MaxHeaderSize int
}

func DefaultSizeLimitConfig() SizeLimitConfig {
	return SizeLimitConfig{
		MaxBodySize:   64 << 10,
		MaxHeaderSize: 1 << 14,
	}
}

// SizeLimit rejects oversized requests and caps the body reader.
func SizeLimit(config SizeLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > config.MaxBodySize {
			tooLarge(c, fmt.Sprintf("body size exceeds %d bytes", config.MaxBodySize))
			return
		}

		headerSize := 0
		for name, values := range c.Request.Header {
			headerSize += len(name)
			for _, value := range values {
				headerSize += len(value)
			}
		}
		if headerSize > config.MaxHeaderSize {
			tooLarge(c, fmt.Sprintf("header size exceeds %d bytes", config.MaxHeaderSize))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxBodySize)
		c.Next()
	}
}

func tooLarge(c *gin.Context, msg string) {
	httputil.RespondWithError(c, apperrors.PayloadTooLarge(msg))
}
