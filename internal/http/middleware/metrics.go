package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"nrrp.app/referrals/internal/metrics"
)

// Metrics records request counts and latencies per route template so path
// parameters stay out of the label values.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPResponseTime.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
