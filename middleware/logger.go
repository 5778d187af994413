package middleware

import (
	"bytes"
	"io"
	"time"

	"github.com/BerniceZTT/crm_web/utils"

	"github.com/gin-gonic/gin"
)

// maxLoggedBody 日志中请求体、响应体的最大长度
const maxLoggedBody = 2048

// bodyLogWriter 用于记录响应内容，超过上限的部分只写出不记录
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现 ResponseWriter 接口
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		if len(b) > room {
			w.body.Write(b[:room])
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

func truncateBody(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "...(truncated)"
	}
	return string(b)
}

// Logger 日志中间件：请求进入时记录请求头与请求体，结束后带上路由模板和会话ID记录响应
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// websocket 升级不能包装 ResponseWriter
		if c.IsWebsocket() {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		headers := make(map[string]string)
		for k, v := range c.Request.Header {
			if len(v) > 0 {
				headers[k] = v[0]
			}
		}

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			// 恢复请求体以便后续处理
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		blw := &bodyLogWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBufferString(""),
		}
		c.Writer = blw

		utils.LogApiRequest(method, path, c.Request.URL.Query(), truncateBody(requestBody), headers)

		c.Next()

		// 会话中间件在本中间件之后执行，此时才能取到会话ID
		utils.LogApiResponse(
			method,
			path,
			c.FullPath(),
			SessionID(c),
			c.Writer.Status(),
			time.Since(start),
			blw.body.String(),
		)
	}
}

// Recovery 恢复中间件
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		// 记录崩溃信息
		utils.Logger.Error().
			Interface("panic", recovered).
			Str("path", c.Request.URL.Path).
			Str("session", SessionID(c)).
			Msg("服务崩溃")

		c.AbortWithStatusJSON(500, gin.H{
			"success": false,
			"error":   "服务器内部错误",
		})
	})
}
