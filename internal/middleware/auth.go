package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/gptbundle/internal/service/auth"
)

// 认证凭证的 Cookie 名
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

const contextUserEmailKey = "user_email"

// RequireAuth 认证中间件
// 优先读 access_token Cookie，其次 Authorization Bearer；两者都无效则 401
func RequireAuth(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
			token = cookie
		}
		if token == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    -1,
				"message": "User not authenticated",
			})
			c.Abort()
			return
		}

		email := authSvc.CurrentUser(token)
		if email == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    -1,
				"message": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(contextUserEmailKey, email)
		c.Next()
	}
}

// GetUserEmail 从上下文获取当前用户邮箱
func GetUserEmail(c *gin.Context) (string, bool) {
	email, exists := c.Get(contextUserEmailKey)
	if !exists {
		return "", false
	}
	e, ok := email.(string)
	return e, ok && e != ""
}
