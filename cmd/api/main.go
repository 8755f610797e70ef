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

	"github.com/mirae/stylegen/internal/api"
	"github.com/mirae/stylegen/internal/api/middleware"
	"github.com/mirae/stylegen/internal/config"
	"github.com/mirae/stylegen/internal/logger"
	"github.com/mirae/stylegen/internal/repository"
	"github.com/mirae/stylegen/internal/service"
	"github.com/mirae/stylegen/internal/session"
	"github.com/mirae/stylegen/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLog := logger.NewDefault()
	logger.SetDefaultLogger(appLog)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.Fatalf("Failed to initialize database: %v", err)
	}
	batchRepo := repository.NewBatchRepository(db)

	// Session-scoped shared state
	abortRegistry := session.NewAbortRegistry()
	broadcaster := session.NewBroadcaster()

	// Initialize services
	promptGen := service.NewPromptGenService(&service.PromptGenConfig{
		Model:          cfg.VLM.Model,
		FallbackModel:  cfg.VLM.FallbackModel,
		APIKey:         cfg.VLM.APIKey,
		BaseURL:        cfg.VLM.BaseURL,
		RequestTimeout: cfg.VLM.RequestTimeout,
		MaxTokens:      cfg.VLM.MaxTokens,
	})

	relay := service.NewRelayService(&service.RelayConfig{
		APIBase:        cfg.Discord.APIBase,
		ServerID:       cfg.Discord.ServerID,
		ChannelID:      cfg.Discord.ChannelID,
		ConnectTimeout: cfg.Discord.ConnectTimeout,
		PromptTimeout:  cfg.Discord.PromptTimeout,
		PromptDelay:    cfg.Discord.PromptDelay,
	}, abortRegistry)

	// Optional reference-image archive
	var archiver *storage.Archiver
	if cfg.Storage.Enabled() {
		store, serr := storage.NewObjectStore(&storage.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if serr != nil {
			appLog.Fatalf("Failed to initialize storage: %v", serr)
		}
		if s3Store, ok := store.(*storage.S3Store); ok {
			if berr := s3Store.EnsureBucket(context.Background()); berr != nil {
				appLog.Fatalf("Failed to ensure storage bucket: %v", berr)
			}
		}
		archiver = storage.NewArchiver(store)
		appLog.Infof("Reference archive enabled: bucket=%s", cfg.Storage.Bucket)
	} else {
		appLog.Info("Reference archive disabled (no storage endpoint configured)")
	}

	var orchestrator *service.Orchestrator
	if archiver != nil {
		orchestrator = service.NewOrchestrator(promptGen, relay, archiver, batchRepo,
			abortRegistry, broadcaster, orchestratorConfig(cfg))
	} else {
		orchestrator = service.NewOrchestrator(promptGen, relay, nil, batchRepo,
			abortRegistry, broadcaster, orchestratorConfig(cfg))
	}

	// Setup router
	router := api.SetupRouter(&api.RouterDeps{
		Orchestrator: orchestrator,
		PromptGen:    promptGen,
		Relay:        relay,
		Abort:        abortRegistry,
		Broadcaster:  broadcaster,
		BatchRepo:    batchRepo,
		Log:          appLog,
		Mode:         cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	// Create HTTP server. No global write timeout: progress streams and
	// synchronous batch responses stay open for the whole run.
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLog.Infof("Starting API server on port %d (mode=%s)", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatalf("Server forced to shutdown: %v", err)
	}

	appLog.Info("Server exited")
}

func orchestratorConfig(cfg *config.Config) *service.OrchestratorConfig {
	return &service.OrchestratorConfig{
		ItemDelay: cfg.Batch.ItemDelay,
		MaxItems:  cfg.Batch.MaxItems,
	}
}
