// Package main runs the club portal HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meridian-club/backend/config"
	"github.com/meridian-club/backend/internal/auth"
	"github.com/meridian-club/backend/internal/badges"
	"github.com/meridian-club/backend/internal/checkin"
	"github.com/meridian-club/backend/internal/emaillogs"
	"github.com/meridian-club/backend/internal/events"
	"github.com/meridian-club/backend/internal/middleware"
	"github.com/meridian-club/backend/internal/payments"
	"github.com/meridian-club/backend/internal/registrations"
	"github.com/meridian-club/backend/internal/reminders"
	"github.com/meridian-club/backend/pkg/database"
	"github.com/meridian-club/backend/pkg/mailer"
	"github.com/meridian-club/backend/pkg/queue"
	"github.com/meridian-club/backend/pkg/redis"
	"github.com/meridian-club/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var sender mailer.Sender
	if cfg.Email.AWSRegion != "" {
		ses, err := mailer.NewSES(ctx, mailer.Config{
			Region:          cfg.Email.AWSRegion,
			AccessKeyID:     cfg.Email.AccessKeyID,
			SecretAccessKey: cfg.Email.SecretAccessKey,
			FromAddress:     cfg.Email.FromAddress,
			FromName:        cfg.Email.FromName,
		}, logger)
		if err != nil {
			logger.Warn("ses disabled", zap.Error(err))
			sender = mailer.NewLogOnly(logger)
		} else {
			sender = ses
		}
	} else {
		sender = mailer.NewLogOnly(logger)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Events
	eventRepo := events.NewRepository(pool)
	eventHandler := events.NewHandler(eventRepo)

	// Payments
	gateway := payments.NewPayPalClient(payments.PayPalConfig{
		BaseURL:      cfg.PayPal.BaseURL,
		ClientID:     cfg.PayPal.ClientID,
		ClientSecret: cfg.PayPal.ClientSecret,
		Timeout:      time.Duration(cfg.PayPal.TimeoutSeconds) * time.Second,
	}, logger)

	// Registrations
	registrationRepo := registrations.NewRepository(pool)
	registrationHandler := registrations.NewHandler(registrationRepo, eventRepo, authRepo, gateway, jobQueue,
		registrations.CheckoutURLs{ReturnURL: cfg.PayPal.ReturnURL, CancelURL: cfg.PayPal.CancelURL}, logger)

	captureService := payments.NewService(registrationRepo, gateway, logger)
	paymentHandler := payments.NewHandler(captureService, authRepo, eventRepo, jobQueue, logger)

	// Badges and check-in
	badgeRepo := badges.NewRepository(pool)
	badgeHandler := badges.NewHandler(badgeRepo)
	evaluator := badges.NewEvaluator(badgeRepo, logger)
	checkinService := checkin.NewService(authRepo, eventRepo, registrationRepo, evaluator, logger)
	checkinHandler := checkin.NewHandler(checkinService, jobQueue, logger)

	// Email logs and reminders
	emailLogsRepo := emaillogs.NewRepository(pool)
	emailLogsHandler := emaillogs.NewHandler(emailLogsRepo)
	reminderRepo := reminders.NewRepository(pool)
	pipeline := reminders.NewPipeline(reminderRepo, sender, emailLogsRepo,
		time.Duration(cfg.Reminders.ClaimGraceSeconds)*time.Second, logger)
	reminderHandler := reminders.NewHandler(reminderRepo, pipeline, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (admin only)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Events
		api.GET("/events", eventHandler.List)
		api.POST("/events", middleware.RequireRole("admin"), eventHandler.Create)
		api.GET("/events/:id", eventHandler.GetByID)
		api.GET("/events/:id/stats", middleware.RequireRole("admin", "staff"), eventHandler.GetStats)
		api.GET("/events/:id/emails", middleware.RequireRole("admin"), emailLogsHandler.ListByEvent)

		// Registrations
		api.POST("/events/:id/register", registrationHandler.Register)
		api.GET("/events/:id/registrations", middleware.RequireRole("admin", "staff"), registrationHandler.ListByEvent)
		api.GET("/registrations/mine", registrationHandler.ListMine)
		api.POST("/registrations/:id/capture", paymentHandler.Capture)

		// Check-in
		api.POST("/events/:id/checkin", middleware.RequireRole("admin", "staff"), checkinHandler.CheckIn)
		api.POST("/checkin", checkinHandler.SelfCheckIn)

		// Badges
		api.GET("/badges", badgeHandler.ListCatalog)
		api.GET("/badges/mine", badgeHandler.ListMine)

		// Reminders (admin)
		api.POST("/events/:id/reminders", middleware.RequireRole("admin"), reminderHandler.Create)
		api.GET("/events/:id/reminders", middleware.RequireRole("admin"), reminderHandler.ListByEvent)
		api.POST("/reminders/run", middleware.RequireRole("admin"), reminderHandler.Run)
	}

	// Webhooks (no JWT)
	router.POST("/webhooks/payment-capture", paymentHandler.Webhook)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
