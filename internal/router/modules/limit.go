package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-user-auth/internal/container"
	"github.com/oksasatya/go-user-auth/internal/interface/middleware"
)

// limiter builds a Redis-backed rate limit from the container. It is a
// pass-through when rate limiting is disabled or Redis is absent.
func limiter(max int, window time.Duration, key middleware.KeyFunc, allow middleware.AllowFunc) gin.HandlerFunc {
	rdb := container.GetRedis()
	if cfg := container.GetConfig(); cfg == nil || !cfg.RateLimitEnabled {
		rdb = nil
	}
	return middleware.RateLimit(rdb, container.GetLogger(), max, window, key, allow)
}
