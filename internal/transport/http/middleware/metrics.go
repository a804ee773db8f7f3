package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"docuchat/internal/metrics"
)

// Metrics records request counts and latency per route. The /metrics
// endpoint itself is not counted. Unmatched requests fall back to the
// raw path so 404 noise stays visible without exploding label values.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequests.WithLabelValues(method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
