package routes

import (
	"github.com/BerniceZTT/crm_web/controllers"
	"github.com/BerniceZTT/crm_web/monitoring"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有路由
func RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")

	RegisterClientRoutes(api)
	RegisterOpportunityRoutes(api)
	RegisterFollowUpRoutes(api)
	RegisterNavigationRoutes(api)
	RegisterDashboardRoutes(router, api)
	RegisterAuditRoutes(api)

	// 健康检查路由
	api.GET("/health", controllers.Health)

	// Prometheus 指标
	router.GET("/metrics", gin.WrapH(monitoring.Handler()))
}
