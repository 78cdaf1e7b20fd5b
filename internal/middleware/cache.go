package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CacheConfig represents cache control configuration
type CacheConfig struct {
	MaxAge         int
	Private        bool
	NoStore        bool
	MustRevalidate bool
	Immutable      bool
	Vary           []string
}

// NoStoreConfig is used for the auth pages and the password API: neither
// forms nor evaluation results may be kept by browsers or proxies.
func NoStoreConfig() CacheConfig {
	return CacheConfig{Private: true, NoStore: true}
}

// StaticCacheConfig is used for embedded assets.
func StaticCacheConfig() CacheConfig {
	return CacheConfig{MaxAge: 3600}
}

func (cc CacheConfig) header() string {
	directives := make([]string, 0, 5)
	if cc.Private {
		directives = append(directives, "private")
	} else {
		directives = append(directives, "public")
	}
	if cc.NoStore {
		directives = append(directives, "no-store")
	} else if cc.MaxAge > 0 {
		directives = append(directives, "max-age="+strconv.Itoa(cc.MaxAge))
	}
	if cc.MustRevalidate {
		directives = append(directives, "must-revalidate")
	}
	if cc.Immutable {
		directives = append(directives, "immutable")
	}
	return strings.Join(directives, ", ")
}

// Cache adds cache control headers to responses
func Cache(config CacheConfig) gin.HandlerFunc {
	value := config.header()
	vary := strings.Join(config.Vary, ", ")

	return func(c *gin.Context) {
		if c.Request.Method != "GET" && c.Request.Method != "HEAD" {
			c.Header("Cache-Control", "no-store")
		} else {
			c.Header("Cache-Control", value)
		}
		if config.NoStore {
			c.Header("Pragma", "no-cache")
		}
		if vary != "" {
			c.Header("Vary", vary)
		}

		c.Next()
	}
}
