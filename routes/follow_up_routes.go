package routes

import (
	"github.com/BerniceZTT/crm_web/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterFollowUpRoutes 注册跟进记录相关路由
func RegisterFollowUpRoutes(api *gin.RouterGroup) {
	followUpRoutes := api.Group("/follow")

	followUpRoutes.GET("", controllers.GetFollowUpList)
	followUpRoutes.DELETE("/:id", controllers.DeleteFollowUp)
	followUpRoutes.PUT("/:id/activities/:activityId", controllers.UpdateFollowUpActivity)
	followUpRoutes.DELETE("/:id/activities/:activityId", controllers.DeleteFollowUpActivity)
}
