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

	"go.uber.org/zap"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	pkgvalidator "github.com/chat2graph/chat2graph/pkg/validator"

	"github.com/chat2graph/chat2graph/internal/adapter/handler"
	"github.com/chat2graph/chat2graph/internal/adapter/repository"
	"github.com/chat2graph/chat2graph/internal/infrastructure/cache"
	"github.com/chat2graph/chat2graph/internal/infrastructure/database"
	"github.com/chat2graph/chat2graph/internal/infrastructure/graph"
	"github.com/chat2graph/chat2graph/internal/infrastructure/storage"
	"github.com/chat2graph/chat2graph/internal/usecase/analytics"
	"github.com/chat2graph/chat2graph/internal/usecase/extraction"
	"github.com/chat2graph/chat2graph/internal/usecase/graphfilter"
	"github.com/chat2graph/chat2graph/internal/usecase/query"
	"github.com/chat2graph/chat2graph/pkg/config"
	"github.com/chat2graph/chat2graph/pkg/llm"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Echo instance
	e := echo.New()

	// Register validator for request validation
	e.Validator = pkgvalidator.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = false

	// Custom logger format
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} | ${status} | ${method} ${uri} | ${latency_human}\n",
	}))

	// Recover from panics
	e.Use(middleware.Recover())

	// CORS middleware
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	// Initialize dependencies
	log.Println("🔧 Initializing dependencies...")

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Database (job store)
	log.Println("📦 Connecting to database...")
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	// Run migrations only when explicitly enabled in config.
	// Production deployments should manage schema via sql-migrate.
	if cfg.Database.AutoMigrate {
		if cfg.Server.Environment == "production" {
			log.Fatalf("AutoMigrate is enabled in production. Disable DB_AUTO_MIGRATE or manage schema with sql-migrate.")
		}
		log.Println("🔄 Applying migrations (development only) ...")
		if err := database.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	} else {
		log.Println("🔄 Skipping migrations; use sql-migrate for schema migrations in CI/CD/production")
	}

	// Initialize artifact cache: Redis when configured, memory otherwise
	var artifactCache cache.Cache
	if cfg.Redis.Host != "" {
		log.Println("📦 Connecting to Redis...")
		redisCache, err := cache.NewRedisCache(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisCache.Close()
		artifactCache = redisCache
	} else {
		log.Println("📦 Redis not configured, using in-memory artifact cache")
		artifactCache = cache.NewMemoryStore()
	}

	// Initialize graph database
	log.Println("🕸️  Connecting to Neo4j...")
	graphClient, err := graph.NewClient(&cfg.Neo4j, logger)
	if err != nil {
		log.Fatalf("Failed to create graph client: %v", err)
	}
	defer graphClient.Close(context.Background())
	episodeStore := graph.NewEpisodeStore(graphClient, logger)

	// Initialize transcript object storage
	log.Println("🗄️  Connecting to object storage...")
	transcriptStorage, err := storage.NewMinIOClient(&cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	// Initialize LLM client
	log.Println("🤖 Initializing Ollama client...")
	ollamaClient := llm.NewOllamaClient(&cfg.Ollama)

	// Initialize services
	log.Println("⚙️  Initializing services...")
	jobRepo := repository.NewExtractionJobRepository(db)
	analyticsService := analytics.NewService(episodeStore, artifactCache, cfg.Artifact.Dir, cfg.Artifact.CacheTTL, logger)
	extractionService := extraction.NewService(jobRepo, episodeStore, transcriptStorage, ollamaClient, analyticsService, cfg.Extraction, logger)
	filterService := graphfilter.New(episodeStore)
	queryRouter := query.NewRouter(ollamaClient, episodeStore, filterService, logger)

	// Initialize handlers
	jobHandler := handler.NewJobHandler(extractionService, logger)
	analysisHandler := handler.NewAnalysisHandler(analyticsService, episodeStore, extractionService, logger)
	graphHandler := handler.NewGraphHandler(filterService, queryRouter, episodeStore, analyticsService, logger)
	transcriptHandler := handler.NewTranscriptHandler(transcriptStorage, logger)
	healthHandler := handler.NewHealthHandler(ollamaClient, episodeStore, logger)

	// Setup router with handlers
	log.Println("🛣️  Setting up routes...")
	router := handler.NewRouter(cfg, jobHandler, analysisHandler, graphHandler, transcriptHandler, healthHandler)
	router.Setup(e)

	// Start extraction worker pool
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if err := extractionService.StartWorkerPool(workerCtx); err != nil {
		log.Fatalf("Failed to start worker pool: %v", err)
	}

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		log.Printf("🚀 Starting server on %s", addr)
		log.Printf("📝 Environment: %s", cfg.Server.Environment)
		log.Printf("🔗 Health check: http://%s/health", addr)

		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	if err := extractionService.StopWorkerPool(); err != nil {
		log.Printf("⚠️  Worker pool shutdown: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped gracefully")
}
