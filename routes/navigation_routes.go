package routes

import (
	"github.com/BerniceZTT/crm_web/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterNavigationRoutes 注册列表页到详情页的导航路由
func RegisterNavigationRoutes(api *gin.RouterGroup) {
	navigationRoutes := api.Group("/navigation")

	navigationRoutes.PUT("/client", controllers.SelectClient)
	navigationRoutes.PUT("/opportunity", controllers.SelectOpportunity)
	navigationRoutes.GET("/client/detail", controllers.GetSelectedClientDetail)
	navigationRoutes.GET("/opportunity/detail", controllers.GetSelectedOpportunityDetail)
	navigationRoutes.DELETE("", controllers.ClearSelection)
}
