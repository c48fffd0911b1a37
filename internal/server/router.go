package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/depositly-backend/internal/handlers"
	"github.com/yungbote/depositly-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware      *middleware.AuthMiddleware
	TransactionHandler  *handlers.TransactionHandler
	ReviewHandler       *handlers.ReviewHandler
	RatingHandler       *handlers.RatingHandler
	NotificationHandler *handlers.NotificationHandler
	SSEHandler          *handlers.SSEHandler
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
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))
	router.Use(otelgin.Middleware("depositly-backend"))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Transactions
	protected.POST("/transactions", cfg.TransactionHandler.OpenIntent)
	protected.GET("/transactions", cfg.TransactionHandler.ListTransactions)
	protected.GET("/transactions/:id", cfg.TransactionHandler.GetTransaction)
	protected.POST("/transactions/:id/confirm", cfg.TransactionHandler.ConfirmPayment)
	protected.POST("/transactions/:id/close", cfg.TransactionHandler.CloseTransaction)
	protected.POST("/transactions/:id/capture", cfg.TransactionHandler.CaptureDeposit)
	protected.DELETE("/transactions/:id", cfg.TransactionHandler.DeleteIntent)
	// Reviews
	protected.POST("/reviews", cfg.ReviewHandler.CreateReview)
	protected.GET("/reviews/:id", cfg.ReviewHandler.GetReview)
	protected.PUT("/reviews/:id", cfg.ReviewHandler.UpdateReview)
	protected.DELETE("/reviews/:id", cfg.ReviewHandler.DeleteReview)
	// Ratings
	protected.GET("/businesses/:id/rating", cfg.RatingHandler.GetBusinessRating)
	// Notifications
	protected.GET("/notifications", cfg.NotificationHandler.ListNotifications)
	protected.POST("/notifications/:id/read", cfg.NotificationHandler.MarkRead)
	// SSE
	protected.GET("/sse/stream", cfg.SSEHandler.SSEStream)

	return router
}
