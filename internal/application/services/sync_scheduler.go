package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/treasury-sync/internal/config"
	"github.com/bimakw/treasury-sync/internal/domain/apperr"
	"github.com/bimakw/treasury-sync/internal/domain/entities"
	"github.com/bimakw/treasury-sync/internal/domain/repositories"
)

// SyncScheduler runs the ingestor for every treasury on a chain on a fixed
// interval
type SyncScheduler struct {
	ingestor     *IngestorService
	treasuryRepo repositories.TreasuryRepository
	chainID      int64
	config       config.IndexerConfig
	logger       *zap.Logger
	stats        *SchedulerStats
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// SchedulerStats tracks scheduler progress
type SchedulerStats struct {
	mu             sync.RWMutex
	Rounds         int64
	TreasuriesRun  int64
	EventsInserted int64
	Failures       int64
	LastRoundTime  time.Time
	LastRoundMs    int64
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(
	ingestor *IngestorService,
	treasuryRepo repositories.TreasuryRepository,
	chainID int64,
	cfg config.IndexerConfig,
	logger *zap.Logger,
) *SyncScheduler {
	return &SyncScheduler{
		ingestor:     ingestor,
		treasuryRepo: treasuryRepo,
		chainID:      chainID,
		config:       cfg,
		logger:       logger,
		stats:        &SchedulerStats{},
		stopCh:       make(chan struct{}),
	}
}

// Start begins the polling loop
func (s *SyncScheduler) Start(ctx context.Context) {
	s.logger.Info("Starting sync scheduler",
		zap.Int64("chain_id", s.chainID),
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Int("workers", s.config.WorkerCount),
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop gracefully stops the scheduler and waits for the current round
func (s *SyncScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping sync scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// Stats returns a snapshot of scheduler progress
func (s *SyncScheduler) Stats() SchedulerStats {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	return SchedulerStats{
		Rounds:         s.stats.Rounds,
		TreasuriesRun:  s.stats.TreasuriesRun,
		EventsInserted: s.stats.EventsInserted,
		Failures:       s.stats.Failures,
		LastRoundTime:  s.stats.LastRoundTime,
		LastRoundMs:    s.stats.LastRoundMs,
	}
}

func (s *SyncScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Run immediately on start
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce syncs every treasury on the chain once, in parallel bounded by
// the worker count. A failing treasury does not stop the others.
func (s *SyncScheduler) RunOnce(ctx context.Context) {
	start := time.Now()

	treasuries, err := s.treasuryRepo.List(ctx, entities.TreasuryFilter{ChainID: &s.chainID})
	if err != nil {
		s.logger.Error("Failed to list treasuries", zap.Error(err))
		s.record(0, 0, 1, start)
		return
	}

	var (
		mu       sync.Mutex
		inserted int64
		failures int64
	)

	g, gCtx := errgroup.WithContext(ctx)
	workers := s.config.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for _, t := range treasuries {
		t := t
		g.Go(func() error {
			result, err := s.ingestor.Sync(gCtx, SyncRequest{
				TreasuryID:      t.ID,
				TreasuryAddress: t.Address,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				s.logger.Error("Treasury sync failed",
					zap.String("treasury_id", t.ID),
					zap.String("kind", string(apperr.KindOf(err))),
					zap.Error(err),
				)
				return nil
			}
			inserted += int64(result.EventsProcessed)
			return nil
		})
	}

	_ = g.Wait()

	s.record(int64(len(treasuries)), inserted, failures, start)

	s.logger.Debug("Sync round completed",
		zap.Int("treasuries", len(treasuries)),
		zap.Int64("inserted", inserted),
		zap.Int64("failures", failures),
		zap.Duration("duration", time.Since(start)),
	)
}

func (s *SyncScheduler) record(treasuries, inserted, failures int64, start time.Time) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	s.stats.Rounds++
	s.stats.TreasuriesRun += treasuries
	s.stats.EventsInserted += inserted
	s.stats.Failures += failures
	s.stats.LastRoundTime = time.Now()
	s.stats.LastRoundMs = time.Since(start).Milliseconds()
}
