package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"medibook/internal/config"
	"medibook/internal/services"
	"medibook/pkg/cache"
	"medibook/pkg/logger"

	"github.com/joho/godotenv"
)

// The worker drains the Redis notification queue the API server fills.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading configuration from the environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg.App.LoggerConfig())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	appLogger = appLogger.WithField("process", "notification-worker")

	if cfg.Storage.Driver == config.StorageDriverMemory {
		appLogger.Fatal("The in-memory storage driver drains notifications inside the API server; the worker needs Redis")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisCache, err := cache.NewRedisCache(ctx, cfg.Redis.CacheConfig())
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to redis")
	}
	defer redisCache.Close()

	queue := services.NewRedisNotificationQueue(redisCache, cfg.Redis.KeyPrefix)
	worker := services.NewNotificationWorker(queue, &services.LogSender{Logger: appLogger}, appLogger, services.WorkerConfig{
		PollTimeout:  cfg.Notification.PollTimeout,
		MaxAttempts:  cfg.Notification.MaxAttempts,
		RetryBackoff: cfg.Notification.RetryBackoff,
		PromoteBatch: cfg.Notification.PromoteBatch,
	})

	if err := worker.Run(ctx); err != nil {
		appLogger.WithError(err).Error("Notification worker exited")
	}
}
