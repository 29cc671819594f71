package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/harborlight/careledger-backend/internal/handlers"
	"github.com/harborlight/careledger-backend/internal/middleware"
)

type RouterConfig struct {
	ActorMiddleware    *middleware.ActorMiddleware
	ClientHandler      *handlers.ClientHandler
	CarePlanHandler    *handlers.CarePlanHandler
	ActivityLogHandler *handlers.ActivityLogHandler
	ActivityFeed       *handlers.ActivityFeedHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Actor"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(cfg.ActorMiddleware.WithActor())
	{
		// Clients
		api.POST("/clients", cfg.ClientHandler.Create)
		api.GET("/clients", cfg.ClientHandler.List)
		api.GET("/clients/:id", cfg.ClientHandler.Get)
		api.PUT("/clients/:id", cfg.ClientHandler.UpdateProfile)
		api.DELETE("/clients/:id", cfg.ClientHandler.Delete)

		// Care plans
		api.POST("/clients/:id/careplans", cfg.CarePlanHandler.Create)
		api.GET("/clients/:id/careplans", cfg.CarePlanHandler.GetHistory)
		api.GET("/clients/:id/careplans/active", cfg.CarePlanHandler.GetActive)
		api.PUT("/careplans/:id", cfg.CarePlanHandler.Update)
		api.POST("/careplans/:id/restore", cfg.CarePlanHandler.Restore)
		api.DELETE("/careplans/:id", cfg.CarePlanHandler.Delete)

		// Activity log
		api.GET("/clients/:id/activity", cfg.ActivityLogHandler.List)
		api.DELETE("/activity/:id", cfg.ActivityLogHandler.Delete)
		api.GET("/activity/stream", cfg.ActivityFeed.Stream)
	}

	return router
}
