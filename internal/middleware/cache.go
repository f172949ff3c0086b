package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	cacheStatusHeader = "X-Cache"
	startedAtKey      = "request_started_at"
)

// Timing stamps the request start so handlers can report processing time.
func Timing() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(startedAtKey, time.Now())
		c.Next()
	}
}

// SetCacheStatus reports on X-Cache whether the body was served from cache,
// plus X-Response-Time when Timing ran earlier in the chain.
func SetCacheStatus(c *gin.Context, hit bool) {
	status := "MISS"
	if hit {
		status = "HIT"
	}
	c.Header(cacheStatusHeader, status)
	if v, ok := c.Get(startedAtKey); ok {
		if started, ok := v.(time.Time); ok {
			c.Header("X-Response-Time", time.Since(started).Round(time.Microsecond).String())
		}
	}
}
