package inspect

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bhandras/devpanel/pkg/logger"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		status := c.Writer.Status()
		latency := time.Since(start)

		// [method] path?query - status (latency)
		if status >= 500 {
			logger.Warnf("inspect: [%s] %s - %d (%v)", c.Request.Method, path, status, latency)
			return
		}
		logger.Debugf("inspect: [%s] %s - %d (%v)", c.Request.Method, path, status, latency)
	}
}
