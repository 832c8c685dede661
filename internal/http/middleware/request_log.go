package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/upcycleai/internal/platform/ctxutil"
	"github.com/yungbote/upcycleai/internal/platform/logger"
)

// RequestLogger logs one line per request. Successful calls log at debug so the
// terminal stays quiet while the companion UI polls.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	log = log.With("component", "api")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		kv := append([]any{
			"route", c.Request.Method + " " + route,
			"status", status,
			"took", time.Since(start).Round(time.Millisecond).String(),
		}, ctxutil.LogFields(c.Request.Context())...)
		if last := c.Errors.Last(); last != nil {
			kv = append(kv, "error", last.Error())
		}

		switch {
		case status >= 500:
			log.Error("request failed", kv...)
		case status == 402, status == 404:
			log.Info("request rejected", kv...)
		case status >= 400:
			log.Warn("request rejected", kv...)
		default:
			log.Debug("request", kv...)
		}
	}
}
