package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/depositly-backend/internal/db"
	"github.com/yungbote/depositly-backend/internal/handlers"
	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/middleware"
	"github.com/yungbote/depositly-backend/internal/observability"
	"github.com/yungbote/depositly-backend/internal/repos"
	"github.com/yungbote/depositly-backend/internal/server"
	"github.com/yungbote/depositly-backend/internal/services"
	"github.com/yungbote/depositly-backend/internal/sse"
	"github.com/yungbote/depositly-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)

	// Tracing
	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "depositly-backend",
		Environment: utils.GetEnv("DEPLOY_ENV", "development", log),
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
	})
	if shutdownOTel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(ctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	customerRepo := repos.NewCustomerRepo(thePG, log)
	businessRepo := repos.NewBusinessRepo(thePG, log)
	itemRepo := repos.NewItemRepo(thePG, log)
	transactionRepo := repos.NewTransactionRepo(thePG, log)
	reviewRepo := repos.NewReviewRepo(thePG, log)
	businessRatingRepo := repos.NewBusinessRatingRepo(thePG, log)
	notificationRepo := repos.NewNotificationRepo(thePG, log)

	// SSE
	log.Info("Setting up SSE hub now...")
	sseHub := sse.NewSSEHub(log)
	sseBus, err := services.NewRedisNotificationBus(log)
	if err != nil {
		log.Warn("Could not init Redis SSE bus, running single-node", "error", err)
		sseBus = nil
	} else {
		if err := sseBus.StartForwarder(context.Background(), sseHub.Broadcast); err != nil {
			log.Warn("Could not start SSE forwarder", "error", err)
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	gateway, err := services.NewStripeGateway(log)
	if err != nil {
		log.Error("Could not init payment gateway", "error", err)
		os.Exit(1)
	}
	scorer, err := services.NewScorerClient(log)
	if err != nil {
		log.Warn("Could not init review scorer, reviews keep provisional scores", "error", err)
		scorer = nil
	}
	ratingService := services.NewRatingService(thePG, log, businessRatingRepo)
	notificationService := services.NewNotificationService(thePG, log, notificationRepo, sseHub, sseBus)
	transactionService := services.NewTransactionService(
		thePG,
		log,
		transactionRepo,
		itemRepo,
		businessRepo,
		customerRepo,
		gateway,
		notificationService,
		ratingService,
	)
	reviewService := services.NewReviewService(
		thePG,
		log,
		reviewRepo,
		transactionRepo,
		businessRatingRepo,
		scorer,
		ratingService,
	)
	reviewService.StartWorker(context.Background())

	// Handlers
	log.Info("Setting up handlers from main...")
	transactionHandler := handlers.NewTransactionHandler(log, transactionService)
	reviewHandler := handlers.NewReviewHandler(log, reviewService)
	ratingHandler := handlers.NewRatingHandler(log, ratingService)
	notificationHandler := handlers.NewNotificationHandler(log, notificationService)
	sseHandler := handlers.NewSSEHandler(log, sseHub)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware:      authMiddleware,
		TransactionHandler:  transactionHandler,
		ReviewHandler:       reviewHandler,
		RatingHandler:       ratingHandler,
		NotificationHandler: notificationHandler,
		SSEHandler:          sseHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
