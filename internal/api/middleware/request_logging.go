package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLogging logs one line per request with method, path, status and
// latency. Health probes stay out of the logs.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		log.WithField("status", c.Writer.Status()).Infof(
			"%s %s %s (%s)",
			c.ClientIP(), c.Request.Method, c.Request.URL.Path,
			time.Since(start).Round(time.Millisecond),
		)
	}
}
