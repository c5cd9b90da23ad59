package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

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

	owner := flag.String("owner", cfg.Reconcile.OwnerAddress, "owner address whose treasuries are checked")
	chainID := flag.Int64("chain", cfg.Ethereum.ChainID, "chain id to reconcile")
	dryRun := flag.Bool("dry-run", cfg.Reconcile.DryRun, "check liveness without deleting")
	flag.Parse()

	// Setup logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *owner == "" {
		logger.Fatal("No owner address; set RECONCILE_OWNER or -owner")
	}
	if *chainID != cfg.Ethereum.ChainID {
		logger.Fatal("Liveness checks need a node on the reconciled chain",
			zap.Int64("chain_id", *chainID),
			zap.Int64("node_chain_id", cfg.Ethereum.ChainID),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

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

	treasuryRepo := database.NewTreasuryRepo(db.DB())
	guard := services.NewStaleGuard(ethClient, cfg.Reconcile.LivenessLimit, logger)
	reconciler := services.NewReconcilerService(treasuryRepo, pageCache, logger)
	sweeper := services.NewSweepService(treasuryRepo, guard, reconciler, logger)

	result, err := sweeper.Sweep(ctx, *owner, *chainID, *dryRun)
	if err != nil {
		logger.Fatal("Reconcile failed", zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("owner", *owner),
		zap.Int64("chain_id", *chainID),
		zap.Int("checked", len(result.Checked)),
		zap.Int("live", result.Decision.Live),
		zap.Int("gone", result.Decision.Gone),
		zap.Int("unknown", result.Decision.Unknown),
		zap.Strings("candidates", result.Decision.Candidates),
		zap.Bool("dry_run", *dryRun),
	}
	if result.Decision.AbortReason != "" {
		fields = append(fields, zap.String("guard", result.Decision.AbortReason))
	}
	if result.Reconcile != nil {
		fields = append(fields, zap.Int("deleted", result.Reconcile.Deleted))
	}
	logger.Info("Reconcile finished", fields...)
}
