package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/analytics"
	"github.com/insightloop/catalog-engine/pkg/config"
	"github.com/insightloop/catalog-engine/pkg/database"
	"github.com/insightloop/catalog-engine/pkg/events"
	"github.com/insightloop/catalog-engine/pkg/handlers"
	"github.com/insightloop/catalog-engine/pkg/llm"
	"github.com/insightloop/catalog-engine/pkg/logging"
	"github.com/insightloop/catalog-engine/pkg/repositories"
	"github.com/insightloop/catalog-engine/pkg/retry"
	"github.com/insightloop/catalog-engine/pkg/services"
	"github.com/insightloop/catalog-engine/pkg/workqueue"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Host),
		zap.String("analytics_path", cfg.Analytics.Path),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model))

	ctx := context.Background()

	if err := database.RunMigrations(cfg.Database.URL(), cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to metadata store", zap.Error(err))
	}
	defer db.Close()

	// Event bus: Redis when configured, in-process otherwise.
	var bus events.Bus
	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient != nil {
		bus = events.NewRedisBus(redisClient, logger)
		logger.Info("Using Redis event bus",
			zap.String("host", cfg.Redis.Host), zap.Int("port", cfg.Redis.Port))
	} else {
		bus = events.NewMemoryBus()
		logger.Info("Redis not configured, using in-process event bus")
	}

	analyticsDB, err := analytics.Open(cfg.Analytics.Path)
	if err != nil {
		logger.Fatal("Failed to open analytics engine", zap.Error(err))
	}
	defer func() { _ = analyticsDB.Close() }()
	inspector := analytics.NewInspector(analyticsDB)

	gateway, err := llm.NewGateway(cfg.LLM.Provider, &llm.Config{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create LLM gateway", zap.Error(err))
	}

	breaker := llm.NewCircuitBreaker(llm.CircuitBreakerConfig{
		FailureThreshold: cfg.LLM.BreakerThreshold,
		Cooldown:         time.Duration(cfg.LLM.BreakerCooldownSecs) * time.Second,
		HalfOpenMaxCalls: cfg.LLM.BreakerHalfOpenMax,
	})

	retryConfig := retry.DefaultConfig()
	retryConfig.MaxRetries = cfg.Pipeline.MaxRetries
	caller := services.NewGatewayCaller(gateway, breaker, retryConfig,
		cfg.LLM.TokenBudget, cfg.LLM.MaxTokens, logger)

	jobRepo := repositories.NewJobRepository(db.Pool)
	catalogRepo := repositories.NewCatalogRepository(db.Pool)
	insightRepo := repositories.NewInsightRepository(db.Pool)
	cacheRepo := repositories.NewWidgetCacheRepository(db.Pool)

	ledger := services.NewJobLedger(jobRepo, bus, logger)

	extraction := services.NewExtractionService(inspector, catalogRepo, cacheRepo, ledger, logger)
	kpis := services.NewKPIGenerationService(caller, insightRepo, cacheRepo, logger)
	questions := services.NewQuestionGenerationService(caller, insightRepo, logger)
	enrichment := services.NewEnrichmentService(catalogRepo, ledger, caller, kpis, questions, logger)
	syncService := services.NewSyncService(
		services.NewEngineSyncSource(inspector), catalogRepo, cacheRepo, ledger, logger)

	runner := workqueue.NewRunner(cfg.Pipeline.Workers, logger,
		workqueue.WithTaskTimeout(cfg.Pipeline.TaskTimeout()),
		workqueue.WithMaxAttempts(cfg.Pipeline.MaxRetries+1),
		workqueue.WithFailureReporter(services.NewTaskFailureReporter(ledger, logger)))

	dispatcher := services.NewJobDispatcher(ledger, runner,
		extraction, enrichment, syncService,
		cfg.Pipeline.BatchSize, 5*time.Second, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, caller, logger).RegisterRoutes(mux)
	handlers.NewJobsHandler(dispatcher, ledger, runner, logger).RegisterRoutes(mux)
	handlers.NewStreamHandler(ledger, bus, cfg.Pipeline.Heartbeat(), logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting catalog-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Error("Runner shutdown incomplete", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
}
