package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"chainless-core/internal/handler/response"
	"chainless-core/internal/service/guard"
	"chainless-core/internal/service/role"
	"chainless-core/pkg/errno"
)

const (
	actorKey = "actor"
	tokenKey = "token"
)

// Auth 解析 Authorization: Bearer <token>，把用户和设备放进 gin.Context
func Auth(sessions *guard.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.Abort(c, errno.ErrTokenInvalid)
			return
		}

		session, err := sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			response.Abort(c, err)
			return
		}

		c.Set(tokenKey, token)
		c.Set(actorKey, role.Actor{
			UserID:      session.UserID,
			DeviceID:    session.DeviceID,
			DeviceBrand: session.DeviceBrand,
		})
		c.Next()
	}
}

// Actor 取出当前请求的用户和设备，只能在 Auth 之后调用
func Actor(c *gin.Context) role.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(role.Actor)
	return actor
}

// Token 当前请求使用的 token
func Token(c *gin.Context) string {
	return c.GetString(tokenKey)
}
