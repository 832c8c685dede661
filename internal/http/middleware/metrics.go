package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/upcycleai/internal/observability"
)

// Metrics records count and latency per matched route. The scrape endpoint and the
// long-lived event stream are skipped.
func Metrics(m *observability.Metrics, skip ...string) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	skipped := make(map[string]bool, len(skip))
	for _, route := range skip {
		skipped[route] = true
	}
	return func(c *gin.Context) {
		if skipped[c.FullPath()] {
			c.Next()
			return
		}
		m.APIInflightInc()
		start := time.Now()
		c.Next()
		m.APIInflightDec()
		m.ObserveAPI(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
