package middleware

import (
	"net/http"
	"time"

	"github.com/BerniceZTT/crm_web/utils"

	"github.com/gin-gonic/gin"
)

// 需要记录的HTTP方法
var loggedMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// 不需要记录的路径
var excludedPaths = map[string]bool{
	"/api/navigation/client":      true,
	"/api/navigation/opportunity": true,
}

// OperationLoggerMiddleware 变更请求的操作日志：
// 将请求来源放入 context，由变更控制器写入审计记录，并输出请求结果日志
func OperationLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !shouldLogOperation(c) {
			c.Next()
			return
		}

		startTime := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		meta := utils.RequestMeta{
			Method:    method,
			Path:      path,
			IPAddress: getClientIP(c),
			UserAgent: c.Request.UserAgent(),
		}
		c.Request = c.Request.WithContext(utils.WithRequestMeta(c.Request.Context(), meta))

		c.Next()

		event := utils.Logger.Info()
		if c.Writer.Status() >= http.StatusBadRequest {
			event = utils.Logger.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("error", c.Errors.String())
		}
		event.
			Str("method", method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Str("session", SessionID(c)).
			Str("ip", meta.IPAddress).
			Int64("responseTime", time.Since(startTime).Milliseconds()).
			Msg("操作日志记录完成")
	}
}

// shouldLogOperation 检查是否需要记录此操作
func shouldLogOperation(c *gin.Context) bool {
	if excludedPaths[c.Request.URL.Path] {
		return false
	}
	return loggedMethods[c.Request.Method]
}

// getClientIP 获取客户端IP地址
func getClientIP(c *gin.Context) string {
	if ip := c.Request.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := c.Request.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := c.Request.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}
