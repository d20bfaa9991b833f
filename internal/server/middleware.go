package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/remote-agent-terminal/pulse/api/handlers"
)

// UpgradeLimiter rejects upgrade attempts beyond perSecond (with the given burst)
// with 429. A non-positive rate disables the limit.
func UpgradeLimiter(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			handlers.SendError(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many connection attempts")
			return
		}
		c.Next()
	}
}
