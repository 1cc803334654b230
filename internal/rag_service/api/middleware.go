package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 校验 "Authorization: Bearer <token>" 请求头。
// 未配置令牌时所有请求返回 503，绝不回退到默认令牌；令牌缺失或不匹配返回 401。
// 校验在任何业务处理之前完成。
func AuthMiddleware(token string) gin.HandlerFunc {
	expected := []byte(token)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody("authentication is not configured"))
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("missing authorization header"))
			return
		}

		// 期望的格式是 "Bearer <token>"，方案名大小写不敏感
		scheme, presented, ok := strings.Cut(authHeader, " ")
		presented = strings.TrimSpace(presented)
		if !ok || !strings.EqualFold(scheme, "Bearer") || presented == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("invalid authorization header format"))
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("invalid API token"))
			return
		}
		c.Next()
	}
}

func errorBody(msg string) gin.H {
	return gin.H{"success": false, "error": msg}
}
