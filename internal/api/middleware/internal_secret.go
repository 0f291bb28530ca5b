package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"talentCorner/internal/errcode"
)

// InternalSecretMiddleware guards operational endpoints such as /metrics.
func InternalSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(secret) == "" {
			abortWith(c, errcode.SystemError, "internal api secret is not configured")
			return
		}
		// 密钥只通过 Header 传递，避免 query 泄露到日志。
		token := strings.TrimSpace(c.GetHeader("X-Internal-Secret"))
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			abortUnauthorized(c)
			return
		}
		c.Next()
	}
}
