package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/nexusmail/nexus-mailer/environments"
	"github.com/nexusmail/nexus-mailer/handlers"
	"github.com/nexusmail/nexus-mailer/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	trackingHandler *handlers.TrackingHandler,
	messageHandler *handlers.MessageHandler,
	campaignHandler *handlers.CampaignHandler,
	identityHandler *handlers.IdentityHandler,
	schedulerHandler *handlers.SchedulerHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Tracking endpoints are hit by mail clients and must stay public.
	e.GET("/track/:token", trackingHandler.TrackOpen)
	e.GET("/click/:token", trackingHandler.TrackClick)

	// API v1 base group, everything behind the API key
	v1 := e.Group("/api/v1", middlewares.APIKeyAuth(cfg.Auth.APIKey))

	messages := v1.Group("/messages")
	messages.GET("", messageHandler.GetAllMessages)
	messages.POST("", messageHandler.ScheduleMessage)
	messages.GET("/stats", messageHandler.GetStats)
	messages.POST("/replay", messageHandler.ReplayAllFailedMessages)
	messages.GET("/:id", messageHandler.GetMessage)
	messages.POST("/:id/replay", messageHandler.ReplayFailedMessage)

	campaigns := v1.Group("/campaigns")
	campaigns.GET("", campaignHandler.ListCampaigns)
	campaigns.POST("", campaignHandler.CreateCampaign)
	campaigns.GET("/:id", campaignHandler.GetCampaign)
	campaigns.DELETE("/:id", campaignHandler.DeleteCampaign)

	identities := v1.Group("/identities")
	identities.GET("", identityHandler.GetIdentity)
	identities.PUT("", identityHandler.SaveIdentity)

	schedulerGroup := v1.Group("/scheduler")
	schedulerGroup.POST("/start", schedulerHandler.StartScheduler)
	schedulerGroup.POST("/stop", schedulerHandler.StopScheduler)
	schedulerGroup.GET("/status", schedulerHandler.GetSchedulerStatus)
}
