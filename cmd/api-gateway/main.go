package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ayushichauhan770/civicseva-api/api/swagger"
	"github.com/ayushichauhan770/civicseva-api/internal/handler"
	"github.com/ayushichauhan770/civicseva-api/internal/middleware"
	"github.com/ayushichauhan770/civicseva-api/internal/models"
	"github.com/ayushichauhan770/civicseva-api/internal/repository"
	"github.com/ayushichauhan770/civicseva-api/internal/service"
	"github.com/ayushichauhan770/civicseva-api/pkg/cache"
	"github.com/ayushichauhan770/civicseva-api/pkg/config"
	"github.com/ayushichauhan770/civicseva-api/pkg/database"
	"github.com/ayushichauhan770/civicseva-api/pkg/jobs"
	"github.com/ayushichauhan770/civicseva-api/pkg/locks"
	"github.com/ayushichauhan770/civicseva-api/pkg/logger"
	corsmiddleware "github.com/ayushichauhan770/civicseva-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ayushichauhan770/civicseva-api/pkg/middleware/requestid"
)

// @title CivicSeva API
// @version 1.0.0
// @description Citizen application lifecycle and escalation engine
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The engine runs without Redis; read caches degrade to misses.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// Repositories.
	appRepo := repository.NewApplicationRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	// One lock registry for every writer of an application id.
	appLocks := locks.NewKeyedMutex()

	// Async notification delivery.
	notificationSvc := service.NewNotificationService(notificationRepo, nil, logr,
		service.WithUnreadCountCache(cacheRepo, cfg.Cache.UnreadCountTTL),
		service.WithDeliveryMetrics(metricsSvc))
	deliveryQueue := jobs.NewQueue("notifications", notificationSvc.Deliver, jobs.QueueConfig{
		Workers:    cfg.Notifications.DispatchWorkers,
		MaxRetries: cfg.Notifications.DispatchRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notificationSvc.SetQueue(deliveryQueue)

	// Domain services.
	lifecycleSvc := service.NewLifecycleService(appRepo, historyRepo, notificationSvc, validate, logr, cfg.SLA,
		service.WithLocks(appLocks),
		service.WithTrackingCache(cacheRepo, cfg.Cache.TrackingTTL),
		service.WithLifecycleMetrics(metricsSvc))
	escalationSvc := service.NewEscalationService(appRepo, feedbackRepo, notificationRepo, notificationSvc,
		validate, logr, cfg.Escalation.AlertThreshold,
		service.WithEscalationLocks(appLocks),
		service.WithEscalationTrackingCache(cacheRepo),
		service.WithEscalationMetrics(metricsSvc))
	sweeperSvc := service.NewSweeperService(lifecycleSvc, logr, cfg.Sweeper, metricsSvc)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "civicseva-api",
	})
	userSvc := service.NewUserService(userRepo, notificationSvc, logr)

	// Handlers.
	appHandler := handler.NewApplicationHandler(lifecycleSvc, escalationSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		}

		// Citizen-facing tracking lookup stays public.
		api.GET("/applications/track/:code", appHandler.Track)

		apps := api.Group("/applications", middleware.JWT(authSvc))
		{
			apps.POST("", middleware.RBAC(models.RoleCitizen), appHandler.Submit)
			apps.GET("/unassigned", middleware.RBAC(models.RoleOfficial, models.RoleAdmin), appHandler.ListUnassigned)
			apps.POST("/:id/accept", middleware.RBAC(models.RoleOfficial), appHandler.Accept)
			apps.POST("/:id/status", middleware.RBAC(models.RoleOfficial, models.RoleAdmin), appHandler.Transition)
			apps.GET("/:id", appHandler.Get)
			apps.GET("/:id/history", appHandler.History)
			apps.GET("/:id/export", appHandler.Export)
			apps.POST("/:id/feedback", middleware.RBAC(models.RoleCitizen), appHandler.SubmitFeedback)
			apps.GET("/:id/feedback/eligibility", middleware.RBAC(models.RoleCitizen), appHandler.FeedbackEligibility)
		}

		notifications := api.Group("/notifications", middleware.JWT(authSvc))
		{
			notifications.GET("", notificationHandler.List)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
		}

		users := api.Group("/users", middleware.JWT(authSvc))
		{
			users.GET("/me", userHandler.Me)
			users.POST("/:id/suspend", middleware.RBAC(models.RoleAdmin), userHandler.Suspend)
		}
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deliveryQueue.Start(rootCtx)
	defer deliveryQueue.Stop()

	if cfg.Sweeper.Enabled {
		sweeperSvc.Start(rootCtx)
		defer sweeperSvc.Stop()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Info("server stopped")
}
