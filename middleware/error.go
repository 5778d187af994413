package middleware

import (
	"github.com/BerniceZTT/crm_web/utils"

	"github.com/gin-gonic/gin"
)

// ErrorHandler 全局错误处理中间件，处理通过 c.Error 登记的错误
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		for _, ginErr := range c.Errors {
			// 客户端错误不上报
			if apiErr := utils.ToApiError(ginErr.Err); apiErr != nil && apiErr.StatusCode < 500 {
				continue
			}
			utils.CaptureError(ginErr.Err, map[string]interface{}{
				"endpoint": c.Request.URL.Path,
				"method":   c.Request.Method,
				"status":   c.Writer.Status(),
			})
		}

		// 如果已经存在错误响应，不重复处理
		if c.Writer.Written() {
			return
		}
		utils.HandleError(c, c.Errors.Last().Err)
	}
}
