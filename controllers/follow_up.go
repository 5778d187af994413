package controllers

import (
	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/service"
	"github.com/BerniceZTT/crm_web/utils"

	"github.com/gin-gonic/gin"
)

// GetFollowUpList 跟进列表：按跟进记录分页，每条活动展开为一行
func GetFollowUpList(c *gin.Context) {
	ws := workspace(c)
	if err := ws.Mount(c.Request.Context(), models.EntityKindOpportunity, models.EntityKindFollowUp); err != nil {
		utils.HandleError(c, err)
		return
	}
	applyPage(c, ws, models.EntityKindFollowUp)
	view := service.PageView(ws, models.EntityKindFollowUp, ws.FollowUps())
	rows := ws.ViewModel().FollowUpRows(view.Items)
	utils.PaginatedResponse(c, rows, view.Total, view.PageIndex, view.PageSize)
}

// UpdateFollowUpActivity 修改一条跟进活动
func UpdateFollowUpActivity(c *gin.Context) {
	var input models.FollowUpActivity
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据: "+err.Error()))
		return
	}
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindFollowUp); err != nil {
		utils.HandleError(c, err)
		return
	}
	follow, err := mutations(ws).UpdateActivity(c.Request.Context(), paramID(c, "id"), paramID(c, "activityId"), input)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, follow, "跟进记录更新成功")
}

// DeleteFollowUpActivity 删除一条跟进活动
func DeleteFollowUpActivity(c *gin.Context) {
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindFollowUp); err != nil {
		utils.HandleError(c, err)
		return
	}
	follow, err := mutations(ws).DeleteActivity(c.Request.Context(), paramID(c, "id"), paramID(c, "activityId"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, follow, "跟进活动已删除")
}

// DeleteFollowUp 删除整条跟进记录
func DeleteFollowUp(c *gin.Context) {
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindFollowUp); err != nil {
		utils.HandleError(c, err)
		return
	}
	if err := mutations(ws).DeleteFollowUp(c.Request.Context(), paramID(c, "id")); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"pagination": ws.Paginator(models.EntityKindFollowUp),
	}, "跟进记录删除成功")
}
