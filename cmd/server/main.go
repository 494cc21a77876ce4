package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rental-notify-service/internal/domain/repository"
	"rental-notify-service/internal/infrastructure/config"
	"rental-notify-service/internal/infrastructure/persistence"
	"rental-notify-service/internal/infrastructure/router"
	"rental-notify-service/internal/interface/handler"
	mongoRepo "rental-notify-service/internal/interface/repository"
	"rental-notify-service/internal/usecase"
	"rental-notify-service/pkg/clock"
	"rental-notify-service/pkg/logger"
	"rental-notify-service/pkg/metrics"
	"rental-notify-service/pkg/notifier"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	// Create logger
	log := logger.NewLogger(cfg.LogLevel)
	defer log.Sync()
	log.Info("Starting Rental Notify Service", "version", cfg.AppVersion)

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up MongoDB connection
	log.Info("Connecting to MongoDB")
	mongoClient, err := persistence.NewMongoClient(ctx, cfg.MongoURI, cfg.MongoUser, cfg.MongoPassword)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}
	db := persistence.GetDatabase(mongoClient, cfg.MongoDB)

	// Status history lives in PostgreSQL when configured
	var statusEventRepo repository.StatusEventRepository = mongoRepo.NopStatusEventRepository{}
	var gormDB *gorm.DB
	if cfg.PostgresURI != "" {
		log.Info("Connecting to PostgreSQL")
		gormDB, err = persistence.NewPostgresDB(cfg.PostgresURI, &mongoRepo.BookingStatusEvents{})
		if err != nil {
			log.Fatal("Failed to connect to PostgreSQL", "error", err)
		}
		statusEventRepo = mongoRepo.NewGormStatusEventRepository(gormDB)
	} else {
		log.Warn("POSTGRES_URI not set, booking status history disabled")
	}

	// The overdue sweep lease lives in Redis when configured
	var locker repository.Locker = mongoRepo.LocalLocker{}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		log.Info("Connecting to Redis")
		redisClient, err = persistence.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatal("Failed to connect to Redis", "error", err)
		}
		locker = mongoRepo.NewRedisLocker(redisClient, cfg.MetricsNamespace)
	} else {
		log.Warn("REDIS_ADDR not set, overdue sweep runs without a lease")
	}

	m := metrics.NewMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)
	clk := clock.Real{}

	// Set up repositories
	bookingRepo := mongoRepo.NewMongoBookingRepository(db)
	reviewRepo := mongoRepo.NewMongoReviewRepository(db)
	notificationRepo := mongoRepo.NewMongoNotificationRepository(db)

	// Set up use cases
	hub := notifier.NewHub(log)
	feed := usecase.NewFeed(notificationRepo, hub)
	reconciler := usecase.NewReconciler(bookingRepo, reviewRepo, notificationRepo, clk, m, log, usecase.ReconcilerConfig{
		OrphanSweepInterval: cfg.OrphanSweepInterval,
		ResubscribeDelay:    cfg.ResubscribeDelay,
		ReviewScanLimit:     cfg.ReviewScanLimit,
	})
	sessions := usecase.NewSessionManager(reconciler, feed, m, log)
	readState := usecase.NewReadStateManager(notificationRepo, feed, clk, log)
	bookings := usecase.NewBookingService(bookingRepo, statusEventRepo, clk, log)
	sweeper := usecase.NewOverdueSweeper(bookingRepo, statusEventRepo, locker, clk, m, log)

	// Start overdue sweeper in a goroutine
	go sweeper.Run(ctx, cfg.OverdueSweepInterval)

	// Start websocket heartbeat in a goroutine
	go hub.Heartbeat(ctx, cfg.HeartbeatInterval)

	// Set up HTTP server
	handlers := router.Handlers{
		Notifications: handler.NewNotificationHandler(readState, sessions, log),
		Bookings:      handler.NewBookingHandler(bookings, log),
		WS:            handler.NewWSHandler(hub, sessions, feed, cfg.CORSAllowedOrigins, cfg.HeartbeatInterval, log),
	}
	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.NewHTTPRouter(handlers, router.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Gatherer:       prometheus.DefaultGatherer,
			RequestTimeout: cfg.WriteTimeout,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Received signal", "signal", sig)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	hub.CloseAll()
	sessions.Shutdown()

	cancel() // Cancel the context to stop all goroutines

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Redis close error", "error", err)
		}
	}

	if gormDB != nil {
		if err := persistence.ClosePostgresDB(gormDB); err != nil {
			log.Error("PostgreSQL close error", "error", err)
		}
	}

	// Disconnect from MongoDB
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		log.Error("MongoDB disconnect error", "error", err)
	}

	log.Info("Rental Notify Service stopped")
}
