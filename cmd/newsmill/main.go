// Newsmill server — provides the HTTP API, runs queue workers for the
// content pipeline, and schedules retention cleanup.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/garethmul/newsmill/pkg/analysis"
	"github.com/garethmul/newsmill/pkg/api"
	"github.com/garethmul/newsmill/pkg/cleanup"
	"github.com/garethmul/newsmill/pkg/config"
	"github.com/garethmul/newsmill/pkg/database"
	"github.com/garethmul/newsmill/pkg/fetcher"
	"github.com/garethmul/newsmill/pkg/generator"
	"github.com/garethmul/newsmill/pkg/llm"
	"github.com/garethmul/newsmill/pkg/pipeline"
	"github.com/garethmul/newsmill/pkg/queue"
	"github.com/garethmul/newsmill/pkg/services"
	"github.com/garethmul/newsmill/pkg/templates"
	"github.com/garethmul/newsmill/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Warn("could not load .env file, continuing with existing environment",
			"error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ctx := context.Background()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Connect to PostgreSQL and apply migrations
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logger.Error("error closing database client", "error", err)
		}
	}()
	if err := database.RunMigrations(dbClient.DB(), dbConfig.Database); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to PostgreSQL, schema up to date")

	// 3. Domain services
	jobService := services.NewJobService(dbClient, cfg.Queue.DefaultMaxRetries)
	sourceService := services.NewSourceService(dbClient)
	articleService := services.NewArticleService(dbClient)
	generatedService := services.NewGeneratedService(dbClient)
	templateService := services.NewTemplateService(dbClient)
	aiLogService := services.NewAILogService(dbClient)

	// 4. LLM provider and client
	provider, err := llm.NewProvider(ctx, cfg.LLM)
	if err != nil {
		logger.Error("failed to initialize LLM provider", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}
	llmClient := llm.NewClient(provider, aiLogService, cfg.LLM, logger)
	logger.Info("LLM client initialized", "provider", cfg.LLM.Provider)

	// 5. Pipeline components
	registry := templates.NewRegistry(templateService, logger)
	feedFetcher := fetcher.New(cfg.Fetcher, articleService, sourceService, logger)
	analyzer := analysis.NewAnalyzer(llmClient, registry, articleService, cfg.Analysis, logger)
	gen := generator.New(llmClient, registry, articleService, generatedService, logger)

	// 6. Worker pool with the pipeline handlers registered
	pool := queue.NewWorkerPool(jobService, cfg.Queue, logger)
	pipe := pipeline.New(feedFetcher, analyzer, gen, articleService, sourceService, logger)
	pipe.Register(pool)
	if err := pool.Start(ctx); err != nil {
		logger.Error("failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 7. Retention cleanup scheduler
	cleanupService := cleanup.NewService(cfg.Retention, jobService, aiLogService, logger)
	if err := cleanupService.Start(); err != nil {
		logger.Error("failed to start cleanup scheduler", "error", err)
		os.Exit(1)
	}

	// 8. HTTP server
	apiServer := api.NewServer(dbClient, jobService, sourceService, articleService,
		generatedService, templateService, pool, logger)
	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info("newsmill started",
		"version", version.Full(),
		"workers", cfg.Queue.WorkerCount,
		"llm_provider", cfg.LLM.Provider)

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown: stop accepting work, drain in-flight jobs,
	// then close the HTTP listener.
	cleanupService.Stop()

	poolCtx, poolCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	pool.Stop(poolCtx)
	poolCancel()

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
