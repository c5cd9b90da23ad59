package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/application/services"
	"github.com/bimakw/treasury-sync/internal/config"
	"github.com/bimakw/treasury-sync/internal/infrastructure/cache"
	"github.com/bimakw/treasury-sync/internal/infrastructure/database"
	"github.com/bimakw/treasury-sync/internal/infrastructure/ethereum"
	"github.com/bimakw/treasury-sync/internal/infrastructure/logging"
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

	logger.Info("Starting treasury-sync indexer",
		zap.Int64("chain_id", cfg.Ethereum.ChainID),
		zap.String("rpc_url", cfg.Ethereum.RPCURL),
		zap.Duration("poll_interval", cfg.Indexer.PollInterval),
	)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// Inserted rows invalidate the API's cached ledger pages when Redis is up
	var pageCache services.PageCache
	redisCache, err := cache.NewRedisCache(cfg.Redis, cfg.API.CacheTTL, logger)
	if err != nil {
		logger.Warn("Failed to connect to Redis, cache invalidation disabled", zap.Error(err))
	} else {
		defer redisCache.Close()
		pageCache = redisCache
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

	// Create scheduler
	ingestor := services.NewIngestorService(
		treasuryRepo,
		ledgerRepo,
		ethereum.NewEndpoints(ethClient, cfg.Ethereum, logger),
		topics,
		pageCache,
		cfg.Indexer,
		logger,
	)
	scheduler := services.NewSyncScheduler(ingestor, treasuryRepo, cfg.Ethereum.ChainID, cfg.Indexer, logger)

	// Start scheduler
	scheduler.Start(ctx)

	// Start metrics server
	go startMetricsServer(cfg.Indexer.MetricsPort, logger)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, stopping scheduler...")

	// Graceful shutdown
	scheduler.Stop()

	stats := scheduler.Stats()
	logger.Info("Indexer stopped",
		zap.Int64("rounds", stats.Rounds),
		zap.Int64("events_inserted", stats.EventsInserted),
		zap.Int64("failures", stats.Failures),
	)
}

func startMetricsServer(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting metrics server", zap.String("addr", addr))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server error", zap.Error(err))
	}
}
