package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nexusmail/nexus-mailer/environments"
	"github.com/nexusmail/nexus-mailer/handlers"
	"github.com/nexusmail/nexus-mailer/internal/dispatch"
	"github.com/nexusmail/nexus-mailer/internal/relay"
	"github.com/nexusmail/nexus-mailer/internal/repository"
	"github.com/nexusmail/nexus-mailer/internal/service"
	"github.com/nexusmail/nexus-mailer/internal/tracking"
	"github.com/nexusmail/nexus-mailer/pkg/alert"
	"github.com/nexusmail/nexus-mailer/pkg/database"
	"github.com/nexusmail/nexus-mailer/pkg/logger"
	"github.com/nexusmail/nexus-mailer/pkg/redis"
	"github.com/nexusmail/nexus-mailer/pkg/validator"
	"github.com/nexusmail/nexus-mailer/routes"

	_ "github.com/nexusmail/nexus-mailer/docs" // swagger docs
)

// @title Nexus Mailer API
// @version 1.0
// @description Bulk email dispatch service with open and click tracking

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	logger.Init()

	// Optional .env for local development; real deployments set the
	// environment directly.
	if err := godotenv.Load(); err == nil {
		logger.Infof("Loaded configuration from .env")
	}

	// Load config
	cfg := environments.Load()

	// Hard-fail if required secrets are missing
	if cfg.Auth.APIKey == "" {
		logger.Fatalf("API_KEY is required but not set")
	}

	logger.Infof("Starting Nexus Mailer...")

	// Init DB
	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed data
	if os.Getenv("SEED_DATA") == "true" {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// Init token cache
	var redisClient *redis.Client
	redisClient, err = redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warnf("Valkey not available, token caching disabled: %v", err)
		redisClient = nil
	}

	// Initialize alert client for operator escalation
	alertClient := alert.NewClient(cfg.Alert)

	// Initialize repositories
	messageRepo := repository.NewMessageRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	identityRepo := repository.NewIdentityRepository(db)

	// Initialize services
	messageService := service.NewMessageService(messageRepo)
	campaignService := service.NewCampaignService(campaignRepo, messageRepo)
	identityService := service.NewIdentityService(identityRepo)

	var trackingService *service.TrackingService
	if redisClient != nil {
		trackingService = service.NewTrackingService(messageRepo, redisClient)
	} else {
		trackingService = service.NewTrackingService(messageRepo, nil)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Assemble the dispatch pipeline: scheduler ticks feed the batch
	// builder, claimed batches go through the pool to delivery workers,
	// workers hand outcomes to the recorder.
	var recorder *dispatch.Recorder
	if redisClient != nil {
		recorder = dispatch.NewRecorder(messageRepo, alertClient, redisClient)
	} else {
		recorder = dispatch.NewRecorder(messageRepo, alertClient, nil)
	}

	rewriter := tracking.NewRewriter(cfg.Tracking.BaseURL)
	opener := dispatch.RelayOpener{Manager: relay.NewManager()}
	worker := dispatch.NewDeliveryWorker(messageRepo, identityRepo, opener, rewriter, recorder, cfg.Dispatch)

	pool := dispatch.NewPool(worker, cfg.Dispatch.WorkerCount)
	pool.Start(ctx)

	builder := dispatch.NewBatchBuilder(messageRepo, pool, cfg.Dispatch)
	sched := dispatch.NewScheduler(messageRepo, builder, cfg.Dispatch.TickInterval)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient)
	trackingHandler := handlers.NewTrackingHandler(trackingService)
	messageHandler := handlers.NewMessageHandler(messageService)
	campaignHandler := handlers.NewCampaignHandler(campaignService)
	identityHandler := handlers.NewIdentityHandler(identityService)
	schedulerHandler := handlers.NewSchedulerHandler(sched, ctx)

	// Auto-start scheduler
	if os.Getenv("AUTO_START_SCHEDULER") != "false" {
		logger.Infof("Auto-starting scheduler...")
		if err := sched.Start(ctx); err != nil {
			logger.Warnf("Failed to auto-start scheduler: %v", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"x-api-key",
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, healthHandler, trackingHandler, messageHandler, campaignHandler, identityHandler, schedulerHandler, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Cancel context to signal all goroutines to stop
	cancel()

	// Stop scheduler first (with timeout)
	if sched.IsRunning() {
		logger.Infof("Stopping scheduler...")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()

		done := make(chan error, 1)
		go func() {
			done <- sched.Stop()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Errorf("Error stopping scheduler: %v", err)
			} else {
				logger.Infof("Scheduler stopped successfully")
			}
		case <-stopCtx.Done():
			logger.Warnf("Scheduler stop timeout, forcing shutdown")
		}
	}

	// Drain the worker pool, letting in-flight batches reach terminal state
	logger.Infof("Draining delivery workers...")
	pool.Stop()

	// Shutdown HTTP server (with timeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	// Close database connection
	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	// Close cache connection
	if redisClient != nil {
		logger.Infof("Closing Valkey connection...")
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing Valkey: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}
