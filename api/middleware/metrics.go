package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/maprank/metrics"
)

// Metrics records request counts and latency per matched route. Unmatched
// paths are grouped under "unmatched" to keep label cardinality bounded.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
