package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// SessionCookie 会话 cookie 名
	SessionCookie = "crm_session"
	// SessionHeader 不使用 cookie 的客户端通过该请求头传递会话ID
	SessionHeader = "X-Session-ID"

	sessionContextKey = "sessionID"
)

// Session 会话中间件：读取或分配会话ID，每个会话对应一个独立的工作区
func Session(ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if id == "" {
			id, _ = c.Cookie(SessionCookie)
		}
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, id, int(ttl.Seconds()), "/", "", false, true)
		c.Header(SessionHeader, id)
		c.Set(sessionContextKey, id)
		c.Next()
	}
}

// SessionID 当前请求的会话ID
func SessionID(c *gin.Context) string {
	return c.GetString(sessionContextKey)
}
