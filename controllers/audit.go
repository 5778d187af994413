package controllers

import (
	"net/http"

	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/utils"

	"github.com/gin-gonic/gin"
)

// GetAuditHistory 实体的变更审计历史
func GetAuditHistory(c *gin.Context) {
	if env.History == nil {
		utils.HandleError(c, utils.NewApiError("审计日志未启用", http.StatusServiceUnavailable, "AUDIT_DISABLED"))
		return
	}
	kind, ok := models.ParseEntityKind(c.Param("kind"))
	if !ok {
		utils.HandleError(c, utils.CreateBadRequestError("未知的实体类型: "+c.Param("kind")))
		return
	}
	limit, ok := utils.QueryInt(c, "limit")
	if !ok || limit <= 0 || limit > 200 {
		limit = 50
	}
	logs, err := env.History.History(c.Request.Context(), kind, c.Param("id"), int64(limit))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	if logs == nil {
		logs = []models.OperationLog{}
	}
	utils.SuccessResponse(c, logs, "")
}

// Health 健康检查
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"workspaces": env.Registry.Len(),
	})
}
