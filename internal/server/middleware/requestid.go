package middleware

import (
	"github.com/gin-gonic/gin"

	"pomelo/internal/pkg/id"
)

// RequestID 请求 ID 中间件
// 透传上游的 X-Request-ID，没有则生成一个
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = id.New()
		}

		c.Set("request_id", rid)
		c.Header("X-Request-ID", rid)

		c.Next()
	}
}
