package router

import (
	"log"

	"chatrelay/config"
	"chatrelay/controllers"
	"chatrelay/middleware"

	"github.com/gin-gonic/gin"
)

// Initialize wires all routes and middlewares.
func Initialize(r *gin.Engine, cfg config.Configuration) {
	_ = cfg

	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")

	// Webhook (Meta) - multi-tenant: /webhook/:userId
	// A bare /webhook keeps working in dev via WEBHOOK_DEFAULT_USER_ID
	api.GET("/webhook", controllers.WebhookVerify)
	api.POST("/webhook", controllers.WebhookUpdate)
	api.GET("/webhook/:userId", controllers.WebhookVerify)
	api.POST("/webhook/:userId", controllers.WebhookUpdate)

	// Console read API
	api.GET("/conversations", Logger(), controllers.GetConversations)
	api.GET("/conversations/:id/messages", Logger(), controllers.GetConversationMessages)
	api.GET("/dashboard/messages-per-day", Logger(), controllers.GetMessagesPerDay)
	api.GET("/dashboard/usage", Logger(), controllers.GetRateUsage)

	// Integration setup
	api.PUT("/voiceflow/config", Logger(), controllers.UpsertVoiceflowConfig)
	api.PUT("/connections/:platform", Logger(), controllers.UpsertSocialConnection)

	log.Printf("Routes initialized")
}
