package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"griff_shop/internal/identity"
)

const (
	HeaderUserID     = "X-User-ID"
	HeaderAdminToken = "X-Admin-Token"
	HeaderRequestID  = "X-Request-ID"

	ctxUserID    = "griff.user_id"
	ctxRequestID = "griff.request_id"
)

// RequireUser 上游身份服务通过 X-User-ID 传入调用者，缺失或非法一律 401。
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := identity.Parse(c.GetHeader(HeaderUserID))
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthorized", "X-User-ID header is missing or invalid")
			return
		}
		c.Set(ctxUserID, id.Uint())
		c.Next()
	}
}

// UserID returns the caller set by RequireUser.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

// RequireAdmin 简单管理员 token；未配置 token 时拒绝所有请求。
func RequireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderAdminToken)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			abort(c, http.StatusUnauthorized, "unauthorized", "admin token 无效")
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":  status,
		"error": code,
		"msg":   msg,
	})
}
