package routes

import (
	"github.com/BerniceZTT/crm_web/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterDashboardRoutes 注册数据看板路由
func RegisterDashboardRoutes(router *gin.Engine, api *gin.RouterGroup) {
	api.GET("/dashboard", controllers.GetDashboard)
	router.GET("/ws/dashboard", controllers.DashboardSocket)
}

// RegisterAuditRoutes 注册审计历史路由
func RegisterAuditRoutes(api *gin.RouterGroup) {
	api.GET("/audit/:kind/:id", controllers.GetAuditHistory)
}
