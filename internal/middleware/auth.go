package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"wallet-session/internal/handler"
	"wallet-session/internal/handler/response"
	"wallet-session/internal/service/auth"
	"wallet-session/pkg/errno"
)

// Authorizer 校验 Bearer token，auth.Service 实现了它
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*auth.Claims, error)
}

// BearerAuth 解析 "Authorization: Bearer <token>"，成功后把载荷写入 handler.ClaimsKey
func BearerAuth(a Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Abort(c, errno.ErrTokenMissing)
			return
		}

		claims, err := a.Authorize(c.Request.Context(), token)
		if err != nil {
			response.Abort(c, err)
			return
		}

		c.Set(handler.ClaimsKey, claims)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
