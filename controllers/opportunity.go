package controllers

import (
	"errors"
	"net/http"

	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/service"
	"github.com/BerniceZTT/crm_web/utils"

	"github.com/gin-gonic/gin"
)

// GetOpportunityList 获取商机列表（分页），每行带归属客户名称与金额显示
func GetOpportunityList(c *gin.Context) {
	ws := workspace(c)
	if err := ws.Mount(c.Request.Context(), models.EntityKindClient, models.EntityKindOpportunity); err != nil {
		utils.HandleError(c, err)
		return
	}
	applyPage(c, ws, models.EntityKindOpportunity)
	respondPage(c, service.PageView(ws, models.EntityKindOpportunity, ws.ViewModel().OpportunityRows()))
}

// GetOpportunityDetail 商机详情：商机、归属客户、跟进活动、客户联系人
func GetOpportunityDetail(c *gin.Context) {
	ws := workspace(c)
	if err := ws.Mount(c.Request.Context(), service.AllKinds...); err != nil {
		utils.HandleError(c, err)
		return
	}
	view, ok := ws.ViewModel().OpportunityDetail(paramID(c, "id"))
	if !ok {
		utils.HandleError(c, utils.CreateNotFoundError("商机"))
		return
	}
	utils.SuccessResponse(c, view, "")
}

// GetOpportunityActivities 商机的跟进活动，没有跟进记录时返回空列表
func GetOpportunityActivities(c *gin.Context) {
	ws := workspace(c)
	if err := ws.Mount(c.Request.Context(), models.EntityKindFollowUp); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, ws.ViewModel().ActivitiesForOpportunity(paramID(c, "id")), "")
}

// CreateOpportunity 新建商机
func CreateOpportunity(c *gin.Context) {
	var input models.Opportunity
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据: "+err.Error()))
		return
	}
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindClient, models.EntityKindOpportunity); err != nil {
		utils.HandleError(c, err)
		return
	}
	created, err := mutations(ws).CreateOpportunity(c.Request.Context(), input)
	var linkErr *service.LinkError
	if errors.As(err, &linkErr) {
		// 商机已创建，仅关联客户失败
		utils.SuccessResponse(c, created, linkErr.Error(), http.StatusCreated)
		return
	}
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, created, "商机创建成功", http.StatusCreated)
}

// UpdateOpportunity 更新商机，状态只能保持或推进到下一阶段
func UpdateOpportunity(c *gin.Context) {
	var input models.Opportunity
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据: "+err.Error()))
		return
	}
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindOpportunity); err != nil {
		utils.HandleError(c, err)
		return
	}
	updated, err := mutations(ws).UpdateOpportunity(c.Request.Context(), paramID(c, "id"), input)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, updated, "商机更新成功")
}

// DeleteOpportunity 删除商机，cascade=true 时同时删除跟进记录
func DeleteOpportunity(c *gin.Context) {
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindOpportunity, models.EntityKindFollowUp); err != nil {
		utils.HandleError(c, err)
		return
	}
	opts := service.DeleteOptions{Cascade: utils.QueryBool(c, "cascade")}
	err := mutations(ws).DeleteOpportunity(c.Request.Context(), paramID(c, "id"), opts)
	var cascadeErr *service.CascadeError
	if errors.As(err, &cascadeErr) {
		// 商机已删除，仅跟进记录删除失败
		utils.SuccessResponse(c, gin.H{
			"pagination":      ws.Paginator(models.EntityKindOpportunity),
			"followUpDeleted": false,
		}, cascadeErr.Error())
		return
	}
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"pagination":      ws.Paginator(models.EntityKindOpportunity),
		"followUpDeleted": opts.Cascade,
	}, "商机删除成功")
}

// AddOpportunityActivity 为商机新增跟进活动
func AddOpportunityActivity(c *gin.Context) {
	var input models.FollowUpActivity
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据: "+err.Error()))
		return
	}
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindOpportunity, models.EntityKindFollowUp); err != nil {
		utils.HandleError(c, err)
		return
	}
	follow, err := mutations(ws).AddActivity(c.Request.Context(), paramID(c, "id"), input)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, follow, "跟进记录已添加", http.StatusCreated)
}
