package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"renthub/internal/config"
	"renthub/internal/handlers"
	"renthub/internal/middleware"
	"renthub/internal/models"
	"renthub/internal/repositories/mongodb"
	"renthub/internal/services"
	"renthub/pkg/cache"
	"renthub/pkg/database"
	"renthub/pkg/logger"
	"renthub/pkg/notify"
	"renthub/pkg/payment"
	"renthub/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.App.LogLevel),
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	db, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		appLogger.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer db.Close()

	if err := db.EnsureIndexes(context.Background()); err != nil {
		appLogger.Fatalf("Failed to ensure indexes: %v", err)
	}

	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		appLogger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	// Repositories.
	bookingRepo := mongodb.NewBookingRepository(db)
	transactionRepo := mongodb.NewPaymentTransactionRepository(db)
	promoRepo := mongodb.NewPromoCodeRepository(db)
	refundRepo := mongodb.NewDepositRefundRepository(db)
	payoutRepo := mongodb.NewPayoutRepository(db)
	withdrawalRepo := mongodb.NewWithdrawalRepository(db)
	chargeRepo := mongodb.NewBookingChargeRepository(db)
	auditRepo := mongodb.NewAuditLogRepository(db)
	catalogRepo := mongodb.NewCatalogRepository(db)

	// Payment providers: cards through Stripe, mobile money through Razorpay.
	providers := map[models.PaymentMethod]payment.Provider{}
	if cfg.Payment.Stripe != nil && cfg.Payment.Stripe.SecretKey != "" {
		providers[models.PaymentMethodCard] = payment.NewStripeProvider(
			cfg.Payment.Stripe.SecretKey, cfg.Payment.Stripe.WebhookSecret)
	}
	if cfg.Payment.Razorpay != nil && cfg.Payment.Razorpay.KeyID != "" {
		providers[models.PaymentMethodMobileMoney] = payment.NewRazorpayProvider(
			cfg.Payment.Razorpay.KeyID, cfg.Payment.Razorpay.KeySecret, cfg.Payment.Razorpay.WebhookSecret)
	}
	if len(providers) == 0 {
		appLogger.Fatal("No payment provider configured")
	}

	var sender notify.Sender = notify.NopSender{}
	if cfg.Notification.Enabled {
		sender = notify.NewTwilioSender(
			cfg.Notification.TwilioAccountSID,
			cfg.Notification.TwilioAuthToken,
			cfg.Notification.TwilioFromNumber,
		)
	}

	clock := services.NewClock()

	// Services.
	pricingService := services.NewPricingService(catalogRepo, promoRepo, bookingRepo, cfg.Payment)
	availabilityService := services.NewAvailabilityService(bookingRepo, catalogRepo)
	paymentService := services.NewPaymentService(transactionRepo, providers, cfg.Payment, appLogger)
	bookingService := services.NewBookingService(
		bookingRepo, transactionRepo, promoRepo, refundRepo, chargeRepo, auditRepo,
		catalogRepo, pricingService, paymentService, sender, clock, cfg.Scheduler, appLogger,
	)
	reconciliationService := services.NewReconciliationService(
		bookingRepo, transactionRepo, refundRepo, payoutRepo, withdrawalRepo,
		chargeRepo, auditRepo, paymentService, bookingService, redisCache,
		clock, cfg.Scheduler, cfg.Payment, appLogger,
	)

	// Handlers.
	bookingHandler := handlers.NewBookingHandler(bookingService, pricingService, availabilityService)
	webhookHandler := handlers.NewWebhookHandler(paymentService, bookingService, appLogger)
	payoutHandler := handlers.NewPayoutHandler(reconciliationService)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(appLogger))

	v1 := router.Group("/api/v1")
	{
		routes.SetupBookingRoutes(v1, bookingHandler, cfg.Security.JWTSecret)
		routes.SetupPaymentRoutes(v1, webhookHandler, payoutHandler, cfg.Security.JWTSecret)
	}

	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK
		if err := db.Ping(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"version": cfg.App.Version,
		})
	})

	// Background reconciliation sweep.
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	go reconciliationService.Start(schedulerCtx)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithField("addr", server.Addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")
	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("Forced shutdown: %v", err)
	}
}
