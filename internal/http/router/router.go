package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/taskbazaar-backend/internal/config"
	"github.com/ignatzorin/taskbazaar-backend/internal/http/handlers"
	"github.com/ignatzorin/taskbazaar-backend/internal/http/middleware"
	"github.com/ignatzorin/taskbazaar-backend/internal/service"
)

// SetupRouter собирает маршруты приложения.
func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	taskHandler *handlers.TaskHandler,
	chatHandler *handlers.ChatHandler,
	wsHandler *handlers.WSHandler,
	webhookHandler *handlers.WebhookHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)
	r.StaticFS("/uploads", http.Dir(cfg.MediaStoragePath))

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	// Вебхук платёжного процессора аутентифицируется подписью, не JWT.
	api.POST("/webhooks/payment", middleware.RateLimitMiddleware(60, cfg.RateLimitPeriod), webhookHandler.HandlePayment)

	api.GET("/ws", wsHandler.Handle)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/tasks", taskHandler.Create)
		protected.GET("/tasks", taskHandler.ListOpen)
		protected.GET("/tasks/my", taskHandler.ListMy)
		protected.GET("/tasks/nearby", taskHandler.Nearby)
		protected.GET("/tasks/assigned", taskHandler.Assigned)
		protected.POST("/tasks/:id/accept", middleware.UUIDValidator("id"), taskHandler.Accept)
		protected.PUT("/tasks/:id/status", middleware.UUIDValidator("id"), taskHandler.UpdateStatus)
		protected.PUT("/tasks/:id/complete", middleware.UUIDValidator("id"), taskHandler.Complete)
		protected.PUT("/tasks/:id/rating", middleware.UUIDValidator("id"), taskHandler.Rate)

		protected.GET("/chat/user-chats", chatHandler.ListMy)
		protected.GET("/chat/task/:taskId", middleware.UUIDValidator("taskId"), chatHandler.GetOrCreate)
		protected.GET("/chat/:chatId/messages", middleware.UUIDValidator("chatId"), chatHandler.ListMessages)
		protected.POST("/chat/:chatId/messages", middleware.UUIDValidator("chatId"), chatHandler.SendMessage)
		protected.PUT("/chat/:chatId/read", middleware.UUIDValidator("chatId"), chatHandler.MarkRead)
	}

	return r
}
