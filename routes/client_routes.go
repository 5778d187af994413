package routes

import (
	"github.com/BerniceZTT/crm_web/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterClientRoutes 注册客户相关路由
func RegisterClientRoutes(api *gin.RouterGroup) {
	clientRoutes := api.Group("/clients")

	clientRoutes.GET("", controllers.GetClientList)
	clientRoutes.POST("", controllers.CreateClient)
	clientRoutes.GET("/:id", controllers.GetClientDetail)
	clientRoutes.GET("/:id/contacts", controllers.GetClientContacts)
	clientRoutes.PUT("/:id", controllers.UpdateClient)
	clientRoutes.PATCH("/:id/active", controllers.SetClientActive)
	clientRoutes.DELETE("/:id", controllers.DeleteClient)
}
