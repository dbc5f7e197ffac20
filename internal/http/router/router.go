package router

import (
	"github.com/gin-gonic/gin"

	"dealsense.app/coach/internal/http/handler"
	"dealsense.app/coach/internal/http/middleware"
)

func SetupRoutes(router *gin.Engine, aiHandler *handler.AIHandler, analyticsHandler *handler.AnalyticsHandler, eventHandler *handler.EventHandler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// CRM write path pushes entity changes here.
	router.POST("/internal/events", eventHandler.Ingest)

	aiGroup := router.Group("/ai")
	aiGroup.Use(middleware.RequireUser())
	{
		aiGroup.GET("/deals/:id/coach", aiHandler.CoachDeal)
		aiGroup.GET("/deals/:id/explain", aiHandler.ExplainDeal)
		aiGroup.GET("/contacts/:id/persona", aiHandler.ContactPersona)
		aiGroup.POST("/objections/handle", aiHandler.HandleObjection)

		aiGroup.GET("/analytics", analyticsHandler.Usage)
		aiGroup.POST("/feedback", analyticsHandler.SubmitFeedback)
	}
}
