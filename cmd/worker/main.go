// Package main runs the background worker: transactional email jobs and the
// reminder dispatch schedule.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meridian-club/backend/config"
	"github.com/meridian-club/backend/internal/auth"
	"github.com/meridian-club/backend/internal/emaillogs"
	"github.com/meridian-club/backend/internal/registrations"
	"github.com/meridian-club/backend/internal/reminders"
	"github.com/meridian-club/backend/internal/worker"
	"github.com/meridian-club/backend/pkg/database"
	"github.com/meridian-club/backend/pkg/mailer"
	"github.com/meridian-club/backend/pkg/queue"
	"github.com/meridian-club/backend/pkg/redis"
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
			logger.Fatal("ses", zap.Error(err))
		}
		sender = ses
	} else {
		sender = mailer.NewLogOnly(logger)
	}

	authRepo := auth.NewRepository(pool)
	registrationRepo := registrations.NewRepository(pool)
	emailLogsRepo := emaillogs.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	emailProcessor := worker.NewEmailProcessor(jobQueue, sender, emailLogsRepo, registrationRepo, authRepo, logger)

	reminderRepo := reminders.NewRepository(pool)
	pipeline := reminders.NewPipeline(reminderRepo, sender, emailLogsRepo,
		time.Duration(cfg.Reminders.ClaimGraceSeconds)*time.Second, logger)
	reminderLoop := worker.NewReminderLoop(pipeline, time.Duration(cfg.Reminders.IntervalSeconds)*time.Second, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go emailProcessor.Run(workerCtx)
	go reminderLoop.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
