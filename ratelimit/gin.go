package ratelimit

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinMiddleware 以客户端 IP 与路由模板为 key 的限流中间件，被限流返回 429
func GinMiddleware(limiter Limiter, limit Limit) gin.HandlerFunc {
	if limiter == nil {
		limiter = Discard()
	}
	return func(c *gin.Context) {
		if !limit.valid() {
			c.Next()
			return
		}
		key := c.FullPath() + "|" + c.ClientIP()
		allowed, err := limiter.Allow(c.Request.Context(), key, limit)
		if err == nil && !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": ErrLimited.Error()})
			return
		}
		c.Next()
	}
}
