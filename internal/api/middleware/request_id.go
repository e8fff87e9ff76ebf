package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

// requestIDMaxLen 外部传入的 Request-ID 超过此长度视为非法，改用生成值
const requestIDMaxLen = 64

// RequestID 为每个请求分配追踪 ID：优先复用调用方的 X-Request-ID，
// 缺失或超长时生成 UUID，并回写到响应头，便于跨服务排查值班问题
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if len(rid) == 0 || len(rid) > requestIDMaxLen {
			rid = uuid.NewString()
		}

		c.Set(requestIDKey, rid)
		c.Header("X-Request-ID", rid)
		c.Next()
	}
}
