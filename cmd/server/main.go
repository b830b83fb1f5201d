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

	"medibook/internal/config"
	handlers "medibook/internal/handlers/shared"
	"medibook/internal/lifecycle"
	"medibook/internal/middleware"
	"medibook/internal/models"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/repositories/memory"
	"medibook/internal/repositories/mongodb"
	"medibook/internal/services"
	"medibook/internal/utils"
	"medibook/pkg/cache"
	"medibook/pkg/database"
	"medibook/pkg/logger"
	"medibook/pkg/payment"
	"medibook/routes"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

type repositories struct {
	users        interfaces.UserRepository
	referrals    interfaces.ReferralCodeRepository
	appointments interfaces.AppointmentRepository
	payments     interfaces.PaymentRepository
	queue        services.NotificationQueue

	// inProcessQueue is set when nothing outside this process drains the
	// notification queue.
	inProcessQueue bool
	closers        []func() error
}

func (r *repositories) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading configuration from the environment")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg.App.LoggerConfig())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	defer repos.Close()

	gateways := buildGateways(cfg.Payment, appLogger)

	// Initialize services
	referralService := services.NewReferralService(repos.referrals, repos.appointments, repos.users, appLogger, cfg.Booking.MaxRetries, cfg.Booking.DefaultMaxUsagePerUser)
	notificationService := services.NewNotificationService(repos.queue, repos.users, appLogger, cfg.Booking.ReminderLead)
	bookingService := services.NewBookingService(repos.appointments, repos.users, referralService, appLogger,
		lifecycle.Policy{PatientCancelWindow: cfg.Booking.PatientCancelWindow}, cfg.Booking.MaxRetries)
	paymentService := services.NewPaymentService(repos.payments, repos.appointments, repos.users, referralService, notificationService, gateways, appLogger,
		services.PaymentServiceConfig{Currency: cfg.App.Currency, CashTolerance: cfg.Payment.CashTolerance, MaxRetries: cfg.Booking.MaxRetries})
	refundService := services.NewRefundService(repos.payments, repos.appointments, referralService, gateways, appLogger, cfg.Booking.MaxRetries)
	userService := services.NewUserService(repos.users, appLogger)

	// Initialize handlers
	appointmentHandler := handlers.NewAppointmentHandler(bookingService, referralService)
	paymentHandler := handlers.NewPaymentHandler(paymentService, refundService, bookingService)
	webhookHandler := handlers.NewWebhookHandler(paymentService)
	referralHandler := handlers.NewReferralHandler(referralService)
	userHandler := handlers.NewUserHandler(userService)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		appLogger.WithError(err).Fatal("Invalid trusted proxies")
	}

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(appLogger))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))

	auth := middleware.AuthRequired(cfg.Security.JWTSecret)
	apiLimit := middleware.RateLimit(middleware.PerMinute(cfg.Security.RateLimitPerMinute))
	webhookLimit := middleware.RateLimit(middleware.NewRateLimiter(rate.Limit(cfg.Security.WebhookRatePerSecond), cfg.Security.WebhookBurst))

	// API routes
	v1 := router.Group("/api/v1")
	{
		routes.SetupPaymentRoutes(v1, auth, webhookLimit, paymentHandler, webhookHandler)

		api := v1.Group("", apiLimit)
		routes.SetupAppointmentRoutes(api, auth, appointmentHandler, paymentHandler)
		routes.SetupUserRoutes(api, auth, userHandler, referralHandler)
		routes.SetupAdminRoutes(api, auth, userHandler, referralHandler, appointmentHandler, paymentHandler)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": utils.AppVersion,
			"storage": cfg.Storage.Driver,
		})
	})

	if repos.inProcessQueue {
		worker := services.NewNotificationWorker(repos.queue, &services.LogSender{Logger: appLogger}, appLogger, workerConfig(cfg.Notification))
		go func() {
			_ = worker.Run(ctx)
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Infof("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server shutdown failed")
	}
}

func openRepositories(ctx context.Context, cfg *config.Config, log *logger.Logger) (*repositories, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Warn("Using in-memory storage; data is lost on restart")
		return &repositories{
			users:          memory.NewUserRepository(),
			referrals:      memory.NewReferralCodeRepository(),
			appointments:   memory.NewAppointmentRepository(),
			payments:       memory.NewPaymentRepository(),
			queue:          services.NewMemoryNotificationQueue(),
			inProcessQueue: true,
		}, nil
	}

	repos := &repositories{}

	db, err := database.NewMongoDB(ctx, cfg.Database.MongoConfig())
	if err != nil {
		return nil, err
	}
	repos.closers = append(repos.closers, db.Close)

	if err := database.NewMigrator(db.Database, log).Up(ctx); err != nil {
		repos.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	redisCache, err := cache.NewRedisCache(ctx, cfg.Redis.CacheConfig())
	if err != nil {
		repos.Close()
		return nil, err
	}
	repos.closers = append(repos.closers, redisCache.Close)

	cacheService := services.NewCacheService(redisCache, log, cfg.Redis.KeyPrefix, cfg.Booking.ReferralCacheTTL)

	repos.users = mongodb.NewUserRepository(db.Database, cacheService)
	repos.referrals = mongodb.NewReferralCodeRepository(db.Database, cacheService, cfg.Booking.ReferralCacheTTL)
	repos.appointments = mongodb.NewAppointmentRepository(db.Database)
	repos.payments = mongodb.NewPaymentRepository(db.Database)
	repos.queue = services.NewRedisNotificationQueue(redisCache, cfg.Redis.KeyPrefix)
	return repos, nil
}

func buildGateways(cfg *config.PaymentConfig, log *logger.Logger) map[models.PaymentMethod]payment.Gateway {
	gateways := make(map[models.PaymentMethod]payment.Gateway)
	if cfg.Razorpay.Enabled() {
		gateways[models.PaymentMethodRazorpay] = payment.NewRazorpayGateway(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
	}
	if cfg.PayU.Enabled() {
		gateways[models.PaymentMethodPayU] = payment.NewPayUGateway(payment.PayUConfig{
			MerchantKey: cfg.PayU.MerchantKey,
			Salt:        cfg.PayU.Salt,
			BaseURL:     cfg.PayU.BaseURL,
			SuccessURL:  cfg.PayU.SuccessURL,
			FailureURL:  cfg.PayU.FailureURL,
		})
	}
	if cfg.Stripe.Enabled() {
		gateways[models.PaymentMethodStripe] = payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	}
	for method := range gateways {
		log.WithField("gateway", method).Info("Payment gateway enabled")
	}
	if len(gateways) == 0 {
		log.Warn("No payment gateway configured; only cash collection is available")
	}
	return gateways
}

func workerConfig(cfg *config.NotificationConfig) services.WorkerConfig {
	return services.WorkerConfig{
		PollTimeout:  cfg.PollTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		RetryBackoff: cfg.RetryBackoff,
		PromoteBatch: cfg.PromoteBatch,
	}
}
