package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/treestandk/wingman/internal/adapters"
	"github.com/treestandk/wingman/internal/audit"
	"github.com/treestandk/wingman/internal/auth"
	"github.com/treestandk/wingman/internal/config"
	"github.com/treestandk/wingman/internal/database"
	"github.com/treestandk/wingman/internal/events"
	"github.com/treestandk/wingman/internal/handlers"
	"github.com/treestandk/wingman/internal/logger"
	"github.com/treestandk/wingman/internal/orchestrator"
	"github.com/treestandk/wingman/internal/registry"
	"github.com/treestandk/wingman/internal/router"
	"github.com/treestandk/wingman/internal/templates"
	"github.com/treestandk/wingman/internal/workers"
)

const (
	workerQueueSize = 100
	workerCount     = 5
	shutdownTimeout = 15 * time.Second
)

func main() {

	ctx := context.Background()

	// Load application configuration
	cfg := config.New()

	logger.Init(cfg.LogLevel, cfg.LogFile)
	logger.Info("Configuration loaded successfully")

	// Pick the deployment registry and audit persistence backend
	var reg registry.Registry
	sinks := audit.Multi{audit.LogSink{}}

	if cfg.StorageMode == "dynamo" {
		dbConfig := database.NewConfig(cfg)
		logger.Infof("Initializing DynamoDB client for tables %s, %s in region %s",
			dbConfig.DeploymentsTable, dbConfig.AuditTable, dbConfig.Region)

		dbClient, err := database.NewClient(ctx, dbConfig)
		if err != nil {
			logger.Fatalf("Failed to initialize DynamoDB client: %v", err)
		}
		logger.Info("DynamoDB client initialized successfully")

		reg = registry.NewDynamo(database.NewDeploymentOperations(dbClient))
		sinks = append(sinks, audit.NewDynamoSink(database.NewAuditOperations(dbClient)))
	} else {
		logger.Info("Using in-memory deployment registry")
		reg = registry.NewMemory()
	}

	var kafkaSink *audit.KafkaSink
	if cfg.AuditStreamingEnabled() {
		kafkaSink = audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		sinks = append(sinks, kafkaSink)
		logger.Infof("Audit streaming enabled, topic: %s", cfg.KafkaAuditTopic)
	}

	// Initialize template storage
	store, err := templates.NewStore(cfg.TemplatesDir)
	if err != nil {
		logger.Fatalf("Failed to initialize template store: %v", err)
	}
	logger.Infof("Template store initialized at %s", cfg.TemplatesDir)

	// Build the service stack in deployment order
	panel := adapters.NewPterodactyl(cfg.Pterodactyl)
	stack := []adapters.Adapter{
		adapters.NewCloudflare(cfg.Cloudflare),
		adapters.NewUniFi(cfg.UniFi),
		adapters.NewNPM(cfg.NPM),
		panel,
	}
	for _, a := range stack {
		logger.WithFields(map[string]interface{}{
			"service":    a.Name(),
			"configured": a.IsConfigured(),
		}).Info("Service adapter registered")
	}

	// Event hub for log and progress streaming
	hub := events.NewHub()

	// Worker pool executing deployments
	supervisor := workers.NewSupervisor(workerQueueSize, workerCount)
	logger.Infof("Worker pool created with %d concurrent workers", workerCount)

	orch := orchestrator.New(reg, hub, supervisor, store, stack, cfg.Cloudflare.Domain, 0)
	logger.Info("Orchestrator initialized")

	// Authentication and authorization
	tokens := auth.NewTokenManager(cfg.JWTSecret)
	authenticator := auth.NewAuthenticator(cfg.Users)
	gate := auth.RoleGate{}
	logger.Infof("Auth initialized with %d provisioned users", len(cfg.Users))

	// Initialize handlers
	h := router.Handlers{
		Health:     handlers.NewHealthHandler(),
		Auth:       handlers.NewAuthHandler(authenticator, tokens, cfg.JWTTTL, sinks),
		Deployment: handlers.NewDeploymentHandler(orch, sinks),
		Templates:  handlers.NewTemplateHandler(store, sinks),
		Catalog:    handlers.NewCatalogHandler(panel),
		Config:     handlers.NewConfigHandler(cfg, stack, sinks),
		Events:     handlers.NewEventsHandler(hub),
		Monitoring: handlers.NewMonitoringHandler(orch),
	}

	// Setup router
	r := router.Setup(cfg, tokens, gate, h)

	srv := &http.Server{
		Addr:              ":" + cfg.GetPort(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Infof("Starting server on :%s", cfg.GetPort())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown: stop accepting requests, then drain in-flight
	// deployments before exiting
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
	}

	supervisor.Close()
	logger.Info("Worker queue closed, waiting for running deployments...")
	supervisor.Wait()
	logger.Info("All workers stopped")

	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Errorf("Closing audit stream: %v", err)
		}
	}
}
