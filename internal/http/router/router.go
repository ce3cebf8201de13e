package router

import (
	"github.com/gin-gonic/gin"

	"github.com/opsbridge/relay/internal/http/handler"
	"github.com/opsbridge/relay/internal/service"
)

func SetupRoutes(router *gin.Engine, ingest service.IngestService, forward service.ForwardService) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	webhooks := router.Group("/webhooks")
	{
		commandHandler := handler.NewCommandHandler(ingest)
		webhooks.POST("/chat/command", commandHandler.HandleCommand)

		eventHandler := handler.NewEventHandler(forward)
		webhooks.POST("/itsm/event", eventHandler.HandleEvent)
	}
}
