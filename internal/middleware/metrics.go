package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/casevault-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route. Raw paths are
// never used as labels: gateway URLs embed capability tokens.
const unmatchedRoute = "unmatched"

// Metrics records request count and latency per route template. Requests to
// any of the skip paths (typically the scrape endpoint) are not observed.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if _, ok := skipped[route]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
