package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scielo-br/pid-provider/internal/service"
)

// Metrics observes every request on the pid API. The route template is used
// as the path label so document lookups collapse into one series instead of
// one per v3.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			// Unrouted requests (404s, stray scanners) share one label.
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
