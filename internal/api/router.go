package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"ezbridge/internal/api/handlers"
	"ezbridge/internal/api/middleware"
	"ezbridge/internal/core"
	"ezbridge/internal/ezviz"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Store    *core.DeviceStore
	Client   *ezviz.Client
	Commands *core.CommandService
	History  handlers.EventHistory
	APIKey   string
	Logger   *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.ContentType())

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.GetHealth)

	// API v1 routes (with authentication)
	v1 := router.Group("/v1")
	v1.Use(authMiddleware(config.APIKey))
	{
		devicesHandler := handlers.NewDevicesHandler(config.Store, config.Client, config.Logger)
		v1.GET("/devices", devicesHandler.ListDevices)
		v1.GET("/devices/:serial", devicesHandler.GetDevice)

		privacyHandler := handlers.NewPrivacyHandler(config.Store, config.Commands, config.Logger)
		v1.GET("/devices/:serial/privacy", privacyHandler.GetPrivacy)
		v1.PUT("/devices/:serial/privacy", privacyHandler.SetPrivacy)

		streamHandler := handlers.NewStreamHandler(config.Client, config.Logger)
		v1.GET("/devices/:serial/snapshot", streamHandler.GetSnapshot)
		v1.GET("/devices/:serial/live", streamHandler.GetLiveAddress)

		if config.History != nil {
			eventsHandler := handlers.NewEventsHandler(config.History, config.Logger)
			v1.GET("/events", eventsHandler.ListEvents)
		}
	}

	return router
}

// authMiddleware verifies API key authentication
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-Ezbridge-Key")
		if providedKey != apiKey {
			c.JSON(401, gin.H{
				"error": "Unauthorized",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
