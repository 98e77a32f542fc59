package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"employee_directory/internal/config"
	"employee_directory/internal/domain"
	"employee_directory/internal/metrics"
	"employee_directory/internal/middleware"
	"employee_directory/pkg/logger"
)

var loginRule = domain.RateLimitRule{
	Scope:  domain.RateLimitScopeLogin,
	Limit:  10,
	Window: time.Minute,
}

func NewRouter(
	handlers *Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	m *metrics.Metrics,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	router.GET("/server-info", handlers.Health.ServerInfo)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		public := v1.Group("/auth")
		{
			public.POST("/login", rateLimitMiddleware.Limit(loginRule), handlers.Auth.Login)
		}

		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth())
		{
			protected.GET("/auth/me", handlers.Auth.Me)

			groups := protected.Group("/groups")
			{
				groups.GET("", handlers.Group.List)
				groups.POST("", handlers.Group.Create)
				groups.POST("/:id/read", handlers.Group.MarkRead)
				groups.GET("/:id/messages", handlers.Message.List)
				groups.POST("/:id/messages", handlers.Message.Create)
			}

			messages := protected.Group("/messages")
			{
				messages.PATCH("/:messageId", handlers.Message.Update)
				messages.DELETE("/:messageId", handlers.Message.Delete)
			}
		}
	}

	// the websocket authenticates itself so browsers can pass ?token=
	router.GET("/ws", handlers.WebSocket.Serve)

	return router
}
