package controllers

import (
	"net/http"

	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/service"
	"github.com/BerniceZTT/crm_web/utils"

	"github.com/gin-gonic/gin"
)

// GetClientList 获取客户列表（分页）
func GetClientList(c *gin.Context) {
	ws := workspace(c)
	if err := ws.Mount(c.Request.Context(), models.EntityKindClient); err != nil {
		utils.HandleError(c, err)
		return
	}
	applyPage(c, ws, models.EntityKindClient)
	respondPage(c, service.PageView(ws, models.EntityKindClient, ws.Clients()))
}

// GetClientDetail 客户详情：客户、关联商机、联系人
func GetClientDetail(c *gin.Context) {
	ws := workspace(c)
	if err := ws.Mount(c.Request.Context(), models.EntityKindClient, models.EntityKindOpportunity); err != nil {
		utils.HandleError(c, err)
		return
	}
	view, ok := ws.ViewModel().ClientDetail(paramID(c, "id"))
	if !ok {
		utils.HandleError(c, utils.CreateNotFoundError("客户"))
		return
	}
	utils.SuccessResponse(c, view, "")
}

// GetClientContacts 客户联系人，用于新建跟进时选择；客户不存在时返回空列表
func GetClientContacts(c *gin.Context) {
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindClient); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, ws.ViewModel().ContactsForClient(paramID(c, "id")), "")
}

// CreateClient 新建客户
func CreateClient(c *gin.Context) {
	var input models.Client
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据: "+err.Error()))
		return
	}
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindClient); err != nil {
		utils.HandleError(c, err)
		return
	}
	created, err := mutations(ws).CreateClient(c.Request.Context(), input)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, created, "客户创建成功", http.StatusCreated)
}

// UpdateClient 更新客户
func UpdateClient(c *gin.Context) {
	var input models.Client
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据: "+err.Error()))
		return
	}
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindClient); err != nil {
		utils.HandleError(c, err)
		return
	}
	updated, err := mutations(ws).UpdateClient(c.Request.Context(), paramID(c, "id"), input)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, updated, "客户更新成功")
}

// SetClientActive 启用/停用客户
func SetClientActive(c *gin.Context) {
	var input struct {
		Active *bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.Active == nil {
		utils.HandleError(c, utils.NewValidationError("", map[string]string{"active": "必填"}))
		return
	}
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindClient); err != nil {
		utils.HandleError(c, err)
		return
	}
	updated, err := mutations(ws).SetClientActive(c.Request.Context(), paramID(c, "id"), *input.Active)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, updated, "客户状态已更新")
}

// DeleteClient 删除客户
func DeleteClient(c *gin.Context) {
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindClient); err != nil {
		utils.HandleError(c, err)
		return
	}
	if err := mutations(ws).DeleteClient(c.Request.Context(), paramID(c, "id")); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"pagination": ws.Paginator(models.EntityKindClient),
	}, "客户删除成功")
}
