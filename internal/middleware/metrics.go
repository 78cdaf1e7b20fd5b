package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/webauth/pkg/metrics"
)

// Metrics records request count, latency and errors per route.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		status := c.Writer.Status()
		code := strconv.Itoa(status)

		m.RequestDuration.WithLabelValues(method, path, code).Observe(time.Since(start).Seconds())
		m.RequestTotal.WithLabelValues(method, path, code).Inc()

		switch {
		case status >= 500:
			m.ErrorTotal.WithLabelValues(method, path, "server").Inc()
		case status >= 400:
			m.ErrorTotal.WithLabelValues(method, path, "client").Inc()
		}
	}
}
