package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/liliang-cn/ragproxy/internal/api"
	"github.com/liliang-cn/ragproxy/internal/api/proxy"
	"github.com/liliang-cn/ragproxy/internal/client"
	"github.com/liliang-cn/ragproxy/internal/config"
	"github.com/liliang-cn/ragproxy/internal/observability"
	"github.com/liliang-cn/ragproxy/internal/repository"
	"github.com/liliang-cn/ragproxy/internal/service"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database (model capability cache persistence)
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	capabilityRepo := repository.NewCapabilityRepository(db)

	// Collaborator clients
	backend := client.NewOllama(cfg.Backend.URL)
	vision := client.NewVision(cfg.Vision.APIURL, cfg.Vision.APIKey, cfg.Vision.Model, logger)
	kb := client.NewKB(cfg.KB.BaseURL)
	webSearch := client.NewWebSearch(cfg.WebSearch.BaseURL, cfg.WebSearch.MaxResults)

	// Warm the model capability cache; the proxy still serves without it
	capabilities := service.NewCapabilityService(capabilityRepo, backend, logger)
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := capabilities.Load(warmCtx); err != nil {
		logger.Warn("Failed to warm model capability cache, continuing", zap.Error(err))
	}
	warmCancel()

	metrics := observability.NewMetrics()

	deps := service.CoordinatorDeps{
		Analyzer:     service.NewAnalyzer(cfg.Enrichment),
		Capabilities: capabilities,
		Vision:       vision,
		KB:           kb,
		Web:          webSearch,
		Metrics:      metrics,
		Logger:       logger,
		Timeout:      cfg.EnrichmentTimeout(),
		TopK:         cfg.KB.TopK,
	}

	relay := proxy.NewHandler(backend, deps, cfg.Backend.MaxRequestSize, metrics, logger)

	// Setup router
	router := api.SetupRouter(relay, metrics, api.RouterConfig{
		AllowOrigin: cfg.CORS.AllowOrigin,
	})

	// Create HTTP server. No WriteTimeout: chat responses stream for as
	// long as the backend generates.
	srv := &http.Server{
		Addr:        cfg.Address(),
		Handler:     router,
		ReadTimeout: 5 * time.Minute,
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting ragproxy server",
			zap.String("address", cfg.Address()),
			zap.String("backend", cfg.Backend.URL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
