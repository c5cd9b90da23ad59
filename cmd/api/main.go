package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/application/services"
	"github.com/bimakw/treasury-sync/internal/config"
	"github.com/bimakw/treasury-sync/internal/infrastructure/cache"
	"github.com/bimakw/treasury-sync/internal/infrastructure/database"
	"github.com/bimakw/treasury-sync/internal/infrastructure/ethereum"
	"github.com/bimakw/treasury-sync/internal/infrastructure/logging"
	"github.com/bimakw/treasury-sync/internal/presentation/handlers"
	"github.com/bimakw/treasury-sync/internal/presentation/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting treasury-sync API",
		zap.Int("port", cfg.API.Port),
		zap.Int64("chain_id", cfg.Ethereum.ChainID),
	)

	// Connect to database
	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// Connect to Redis cache (optional)
	var pageCache services.PageCache
	var cacheChecker handlers.HealthChecker
	redisCache, err := cache.NewRedisCache(cfg.Redis, cfg.API.CacheTTL, logger)
	if err != nil {
		logger.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
	} else {
		defer redisCache.Close()
		pageCache = redisCache
		cacheChecker = redisCache
	}

	// Connect to Ethereum node
	ethClient, err := ethereum.NewClient(cfg.Ethereum, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Ethereum node", zap.Error(err))
	}
	defer ethClient.Close()

	topics, err := ethereum.LoadTopics(cfg.Events.TopicsFile)
	if err != nil {
		logger.Fatal("Failed to load topic table", zap.Error(err))
	}

	// Create repositories
	treasuryRepo := database.NewTreasuryRepo(db.DB())
	ledgerRepo := database.NewLedgerRepo(db.DB())

	// Create services
	endpoints := ethereum.NewEndpoints(ethClient, cfg.Ethereum, logger)
	metadata := ethereum.NewTokenMetadataReader(ethClient, logger)

	ingestorService := services.NewIngestorService(treasuryRepo, ledgerRepo, endpoints, topics, pageCache, cfg.Indexer, logger)
	ledgerService := services.NewLedgerService(ledgerRepo, treasuryRepo, pageCache, logger)
	treasuryService := services.NewTreasuryService(treasuryRepo, metadata, cfg.Ethereum.ChainID, logger)
	reconcilerService := services.NewReconcilerService(treasuryRepo, pageCache, logger)

	// Create handlers
	syncHandler := handlers.NewSyncHandler(ingestorService, logger)
	reconcileHandler := handlers.NewReconcileHandler(reconcilerService, logger)
	treasuryHandler := handlers.NewTreasuryHandler(treasuryService, logger)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService, logger)
	healthHandler := handlers.NewHealthHandler(db, cacheChecker, ethClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)

	// Health endpoints (no rate limiting)
	healthHandler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))

		treasuryHandler.RegisterRoutes(r)
		ledgerHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.WriteRateLimiter(cfg.API.WriteRateLimit))
			syncHandler.RegisterRoutes(r)
			reconcileHandler.RegisterRoutes(r)
			treasuryHandler.RegisterWriteRoutes(r)
			ledgerHandler.RegisterWriteRoutes(r)
		})
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Run server in goroutine
	go func() {
		logger.Info("API server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}
