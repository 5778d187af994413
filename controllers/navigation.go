package controllers

import (
	"github.com/BerniceZTT/crm_web/middleware"
	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/service"
	"github.com/BerniceZTT/crm_web/utils"

	"github.com/gin-gonic/gin"
)

type selectRequest struct {
	ID models.ID `json:"id"`
}

func bindSelection(c *gin.Context) (models.ID, bool) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID.IsZero() {
		utils.HandleError(c, utils.NewValidationError("", map[string]string{"id": "必填"}))
		return "", false
	}
	return req.ID, true
}

// SelectClient 列表页点击客户，记录选中的客户
func SelectClient(c *gin.Context) {
	id, ok := bindSelection(c)
	if !ok {
		return
	}
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindClient); err != nil {
		utils.HandleError(c, err)
		return
	}
	client, found := ws.ViewModel().Client(id)
	if !found {
		utils.HandleError(c, utils.CreateNotFoundError("客户"))
		return
	}
	if err := env.Navigation.SelectClient(c.Request.Context(), middleware.SessionID(c), client); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, client, "")
}

// SelectOpportunity 列表页点击商机，记录选中的商机
func SelectOpportunity(c *gin.Context) {
	id, ok := bindSelection(c)
	if !ok {
		return
	}
	ws := workspace(c)
	if err := ws.EnsureLoaded(c.Request.Context(), models.EntityKindOpportunity); err != nil {
		utils.HandleError(c, err)
		return
	}
	opp, found := ws.ViewModel().Opportunity(id)
	if !found {
		utils.HandleError(c, utils.CreateNotFoundError("商机"))
		return
	}
	if err := env.Navigation.SelectOpportunity(c.Request.Context(), middleware.SessionID(c), opp); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, opp, "")
}

// GetSelectedClientDetail 详情页：按选中的客户重新加载并返回详情
func GetSelectedClientDetail(c *gin.Context) {
	selected, err := env.Navigation.SelectedClient(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	ws := workspace(c)
	if err := ws.Mount(c.Request.Context(), models.EntityKindClient, models.EntityKindOpportunity); err != nil {
		utils.HandleError(c, err)
		return
	}
	view, ok := ws.ViewModel().ClientDetail(selected.ID)
	if !ok {
		utils.HandleError(c, utils.CreateNotFoundError("客户"))
		return
	}
	utils.SuccessResponse(c, view, "")
}

// GetSelectedOpportunityDetail 详情页：按选中的商机重新加载并返回详情
func GetSelectedOpportunityDetail(c *gin.Context) {
	selected, err := env.Navigation.SelectedOpportunity(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	ws := workspace(c)
	if err := ws.Mount(c.Request.Context(), service.AllKinds...); err != nil {
		utils.HandleError(c, err)
		return
	}
	view, ok := ws.ViewModel().OpportunityDetail(selected.ID)
	if !ok {
		utils.HandleError(c, utils.CreateNotFoundError("商机"))
		return
	}
	utils.SuccessResponse(c, view, "")
}

// ClearSelection 清除会话的选中记录
func ClearSelection(c *gin.Context) {
	if err := env.Navigation.Clear(c.Request.Context(), middleware.SessionID(c)); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, nil, "已清除选中记录")
}
