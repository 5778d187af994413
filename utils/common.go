package utils

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// PaginatedResponse 分页响应，page 从 0 开始
func PaginatedResponse(c *gin.Context, data interface{}, total int, page int, limit int) {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"pagination": gin.H{
			"total": total,
			"page":  page,
			"limit": limit,
			"pages": pages,
		},
	})
}

// QueryInt 读取整数查询参数，缺失或非法时返回 -1 与 false
func QueryInt(c *gin.Context, key string) (int, bool) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return -1, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1, false
	}
	return n, true
}

// QueryBool 读取布尔查询参数
func QueryBool(c *gin.Context, key string) bool {
	b, _ := strconv.ParseBool(c.Query(key))
	return b
}
