package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"talentCorner/internal/auth"
	"talentCorner/internal/errcode"
)

const mustChangePasswordKey = "mustChangePassword"

func abortWith(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(errcode.HTTPStatus(code), gin.H{"success": false, "error": msg, "code": code})
}

func abortUnauthorized(c *gin.Context) { abortWith(c, errcode.Unauthorized, "unauthorized") }

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.TokenClaims, error)
}

// AuthMiddleware 校验访问令牌，并将机构身份写入请求上下文。
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		claims, err := validator.ValidateToken(parts[1])
		if err != nil || claims.TokenType != auth.TokenTypeAccess {
			abortUnauthorized(c)
			return
		}

		principal := claims.Principal()
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), principal))
		c.Set(mustChangePasswordKey, principal.MustChangePassword)
		if logger := LoggerFromContext(c); logger != nil {
			c.Set(slogLoggerKey, logger.With("org", auth.OrganizationKey(principal.Organization)))
		}
		c.Next()
	}
}

// PrincipalOf returns the organization authenticated by AuthMiddleware.
func PrincipalOf(c *gin.Context) (auth.Principal, bool) {
	return auth.PrincipalFrom(c.Request.Context())
}
