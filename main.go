package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/audit"
	"github.com/clinchat/backend/internal/azure"
	"github.com/clinchat/backend/internal/config"
	"github.com/clinchat/backend/internal/handler"
	"github.com/clinchat/backend/internal/llm"
	"github.com/clinchat/backend/internal/middleware"
	"github.com/clinchat/backend/internal/report"
	"github.com/clinchat/backend/internal/repository"
	"github.com/clinchat/backend/internal/service"
	"github.com/clinchat/backend/pkg/model"
)

var (
	logger *zap.Logger
	pool   *pgxpool.Pool
	cfg    *config.Config
)

// reportDataStore combines the window and conversation repositories into the
// single snapshot loader the report generator reads from
type reportDataStore struct {
	*repository.WindowRepository
	*repository.ConversationRepository
}

func main() {
	// Load configuration
	var err error
	cfg, err = config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize Zap logger
	if cfg.Server.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
	)

	// Initialize database connection pool with pgx
	pool, err = pgxpool.New(context.Background(), cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	// Test database connection
	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Successfully connected to database")

	// Initialize model providers
	providers := map[model.ModelProvider]llm.Provider{
		model.ModelProviderLocal: llm.NewOllamaProvider(
			cfg.LLM.Ollama.BaseURL,
			cfg.LLM.Ollama.ProbeTimeout,
			cfg.LLM.Ollama.RequestTimeout,
			logger,
		),
	}
	if cfg.LLM.OpenAI.APIKey != "" {
		openAIProvider, err := llm.NewOpenAIProvider(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.BaseURL, logger)
		if err != nil {
			logger.Fatal("Failed to initialize OpenAI provider", zap.Error(err))
		}
		providers[model.ModelProviderOpenAI] = openAIProvider
	}
	router := llm.NewRouter(logger, providers)

	// Initialize repositories
	windowRepo := repository.NewWindowRepository(pool, logger)
	conversationRepo := repository.NewConversationRepository(pool, logger)
	catalogRepo := repository.NewModelCatalogRepository(pool, logger)
	reportRepo := repository.NewReportRepository(pool, logger)
	userRepo := repository.NewUserRepository(pool, logger)

	// Initialize blob storage for report archives when configured
	var archiver report.Archiver
	if cfg.HasBlobStorage() {
		var blobClient *azure.BlobStorageClient
		if cfg.Storage.ConnectionString != "" {
			blobClient, err = azure.NewBlobStorageClientFromConnectionString(
				cfg.Storage.ConnectionString,
				cfg.Storage.ReportContainer,
				logger,
			)
		} else {
			blobClient, err = azure.NewBlobStorageClient(
				cfg.Storage.AccountName,
				cfg.Storage.AccountKey,
				cfg.Storage.ReportContainer,
				logger,
			)
		}
		if err != nil {
			logger.Fatal("Failed to initialize blob storage client", zap.Error(err))
		}
		archiver = blobClient
	} else {
		logger.Warn("Blob storage not configured, report archiving disabled")
	}

	// Initialize report generator
	generator := report.NewGenerator(
		reportDataStore{windowRepo, conversationRepo},
		reportRepo,
		archiver,
		report.DefaultComponents(catalogRepo, router, logger),
		logger,
	)

	// Initialize services
	accessService := service.NewAccessService(userRepo, logger)
	statusEngine := service.NewStatusEngine(windowRepo, logger)
	windowService := service.NewWindowService(windowRepo, conversationRepo, accessService, statusEngine, logger)
	chatService := service.NewChatService(
		conversationRepo,
		windowRepo,
		catalogRepo,
		userRepo,
		accessService,
		router,
		logger,
	)
	reportService := service.NewReportService(reportRepo, windowRepo, generator, accessService, logger)
	settingsService := service.NewSettingsService(userRepo, accessService, logger)

	// Initialize the window finalization scheduler
	scheduler := service.NewScheduler(windowRepo, reportRepo, generator, cfg.Scheduler.Interval, logger)
	if cfg.Scheduler.Enabled {
		scheduler.Start()
	} else {
		logger.Warn("Window scheduler disabled by configuration")
	}

	// Initialize handlers
	auditLogger := audit.NewLogger(pool, logger)
	handlers := handler.Handlers{
		Window:       handler.NewWindowHandler(windowService, auditLogger, logger),
		Conversation: handler.NewConversationHandler(chatService, auditLogger, logger),
		Report:       handler.NewReportHandler(reportService, auditLogger, logger),
		Settings:     handler.NewSettingsHandler(settingsService, auditLogger, logger),
		Health:       handler.NewHealthHandler(pool, logger),
	}

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	r := gin.New()

	// Add recovery middleware (must be first)
	r.Use(middleware.RecoveryMiddleware(logger))

	// Add CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Configure appropriately for production
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", "X-User-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Add request ID middleware
	r.Use(middleware.RequestIDMiddleware())

	// Add request logging middleware
	r.Use(middleware.RequestLoggingMiddleware(logger))

	// Add error logging middleware
	r.Use(middleware.ErrorLoggingMiddleware(logger))

	// Add slow query logging middleware
	r.Use(middleware.SlowQueryLoggingMiddleware(logger, 1*time.Second))

	// Register API routes
	handler.RegisterRoutes(r, handlers, middleware.IdentityMiddleware(userRepo, logger))

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the scheduler and wait for an in-flight tick to finish
	scheduler.Stop()

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Close database connections
	pool.Close()

	logger.Info("Server exited")
}
