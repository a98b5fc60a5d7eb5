package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/instrolab/lims-portal-api/internal/service"
)

// Metrics observes every request with its route template. Unmatched paths
// collapse into one label so probe scans cannot blow up cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
