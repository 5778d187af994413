package controllers

import (
	"context"
	"time"

	"github.com/BerniceZTT/crm_web/middleware"
	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/repository"
	"github.com/BerniceZTT/crm_web/service"
	"github.com/BerniceZTT/crm_web/utils"

	"github.com/gin-gonic/gin"
)

// AuditHistory 审计历史查询
type AuditHistory interface {
	History(ctx context.Context, kind models.EntityKind, entityID string, limit int64) ([]models.OperationLog, error)
}

// Env 控制器依赖
type Env struct {
	Store            repository.Store
	Registry         *service.WorkspaceRegistry
	Navigation       *service.NavigationStore
	Audit            service.AuditRecorder
	History          AuditHistory
	Events           service.ChangePublisher
	PageSize         int
	DashboardRefresh time.Duration
}

var env *Env

// Setup 设置控制器依赖，注册路由前调用
func Setup(e *Env) {
	if e.PageSize <= 0 {
		e.PageSize = service.DefaultPageSize
	}
	if e.DashboardRefresh <= 0 {
		e.DashboardRefresh = 10 * time.Second
	}
	env = e
}

// workspace 当前会话的工作区
func workspace(c *gin.Context) *service.Workspace {
	return env.Registry.Get(middleware.SessionID(c))
}

// mutations 当前会话的变更控制器
func mutations(ws *service.Workspace) *service.MutationController {
	return service.NewMutationController(ws, env.Audit, env.Events)
}

// applyPage 按查询参数 page（从 0 开始）跳转页码，未提供时保持当前页
func applyPage(c *gin.Context, ws *service.Workspace, kind models.EntityKind) {
	if page, ok := utils.QueryInt(c, "page"); ok {
		ws.GotoPage(kind, page)
	}
}

// respondPage 输出分页数据
func respondPage[T any](c *gin.Context, view models.PageView[T]) {
	utils.PaginatedResponse(c, view.Items, view.Total, view.PageIndex, view.PageSize)
}

func paramID(c *gin.Context, name string) models.ID {
	return models.ID(c.Param(name))
}
