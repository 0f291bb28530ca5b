package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	correlationIDKey    = "correlationID"
	correlationIDHeader = "X-Correlation-ID"
	requestIDHeader     = "X-Request-ID"
	maxCorrelationIDLen = 64
)

// CorrelationIDMiddleware 沿用调用方的 X-Correlation-ID（或 X-Request-ID），否则生成新的 UUID。
// 异步任务会带上同一个 ID，便于串联 API 与 worker 日志。
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationIDHeader)
		if id == "" {
			id = c.GetHeader(requestIDHeader)
		}
		if !validCorrelationID(id) {
			id = uuid.NewString()
		}

		c.Set(correlationIDKey, id)
		c.Header(correlationIDHeader, id)
		c.Next()
	}
}

// validCorrelationID accepts short, printable ASCII IDs so they are safe to log verbatim.
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetCorrelationID 从上下文中取出 Correlation ID。
func GetCorrelationID(c *gin.Context) string {
	id, _ := c.Value(correlationIDKey).(string)
	return id
}
