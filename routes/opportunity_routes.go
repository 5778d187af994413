package routes

import (
	"github.com/BerniceZTT/crm_web/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterOpportunityRoutes 注册商机相关路由
func RegisterOpportunityRoutes(api *gin.RouterGroup) {
	opportunityRoutes := api.Group("/opportunities")

	opportunityRoutes.GET("", controllers.GetOpportunityList)
	opportunityRoutes.POST("", controllers.CreateOpportunity)
	opportunityRoutes.GET("/:id", controllers.GetOpportunityDetail)
	opportunityRoutes.PUT("/:id", controllers.UpdateOpportunity)
	opportunityRoutes.DELETE("/:id", controllers.DeleteOpportunity)
	opportunityRoutes.GET("/:id/activities", controllers.GetOpportunityActivities)
	opportunityRoutes.POST("/:id/activities", controllers.AddOpportunityActivity)
}
