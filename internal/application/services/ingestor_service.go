package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/config"
	"github.com/bimakw/treasury-sync/internal/domain/apperr"
	"github.com/bimakw/treasury-sync/internal/domain/entities"
	"github.com/bimakw/treasury-sync/internal/domain/repositories"
	"github.com/bimakw/treasury-sync/internal/infrastructure/cache"
	"github.com/bimakw/treasury-sync/internal/infrastructure/ethereum"
	"github.com/bimakw/treasury-sync/internal/infrastructure/metrics"
)

// IngestorService mirrors a treasury's on-chain events into its ledger
type IngestorService struct {
	treasuryRepo repositories.TreasuryRepository
	ledgerRepo   repositories.LedgerRepository
	readers      ReaderProvider
	topics       ethereum.TopicTable
	decoder      *ethereum.Decoder
	cache        PageCache
	config       config.IndexerConfig
	logger       *zap.Logger
}

// NewIngestorService creates a new ingestor service
func NewIngestorService(
	treasuryRepo repositories.TreasuryRepository,
	ledgerRepo repositories.LedgerRepository,
	readers ReaderProvider,
	topics ethereum.TopicTable,
	cache PageCache,
	cfg config.IndexerConfig,
	logger *zap.Logger,
) *IngestorService {
	return &IngestorService{
		treasuryRepo: treasuryRepo,
		ledgerRepo:   ledgerRepo,
		readers:      readers,
		topics:       topics,
		decoder:      ethereum.NewDecoder(topics),
		cache:        cache,
		config:       cfg,
		logger:       logger,
	}
}

// SyncRequest asks for one ingestion run
type SyncRequest struct {
	TreasuryID      string `json:"treasuryId"`
	TreasuryAddress string `json:"treasuryAddress"`
	FromBlock       *int64 `json:"fromBlock,omitempty"`
	RPCURL          string `json:"rpcUrl,omitempty"`
}

// SyncResult is the outcome of a completed run
type SyncResult struct {
	Success         bool        `json:"success"`
	SyncedFrom      int64       `json:"syncedFrom"`
	SyncedTo        int64       `json:"syncedTo"`
	EventsProcessed int         `json:"eventsProcessed"`
	Events          []LedgerDTO `json:"events"`
	Duplicates      int         `json:"duplicates"`
	Errors          []string    `json:"errors"`
	// SkippedBlocks lists blocks, ascending, whose logs were not stored
	// because their timestamp was unavailable. The cursor may already be
	// past them; rerun with fromBlock set to the first one.
	SkippedBlocks []int64 `json:"skippedBlocks"`
}

// Validate checks the request shape before any I/O
func (r SyncRequest) Validate(readers ReaderProvider) error {
	if !entities.IsValidAddress(r.TreasuryAddress) {
		return apperr.Validation("treasuryAddress must be a 0x-prefixed 40 hex digit address")
	}
	if strings.TrimSpace(r.TreasuryID) == "" {
		return apperr.Validation("treasuryId is required")
	}
	if _, err := uuid.Parse(r.TreasuryID); err != nil {
		return apperr.Validation("treasuryId must be a UUID")
	}
	if r.FromBlock != nil && *r.FromBlock < 0 {
		return apperr.Validation("fromBlock must be non-negative")
	}
	if r.RPCURL != "" && (readers == nil || !readers.Allowed(r.RPCURL)) {
		return apperr.Validation("rpcUrl is not an allowed endpoint")
	}
	return nil
}

// Sync runs the ingestor once for a treasury. Transport failures abort
// before any write when fetching and mid-run when storing; rerunning is
// safe either way.
func (s *IngestorService) Sync(ctx context.Context, req SyncRequest) (result *SyncResult, err error) {
	start := time.Now()
	defer func() {
		metrics.SyncDuration.Observe(time.Since(start).Seconds())
		metrics.SyncRunsTotal.WithLabelValues(syncOutcome(result, err)).Inc()
	}()

	// Validate input
	if err := req.Validate(s.readers); err != nil {
		return nil, err
	}

	// Resolve the treasury
	treasury, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	// Derive the lower bound
	cursor, err := s.ledgerRepo.GetCursor(ctx, treasury.ID)
	if err != nil {
		return nil, apperr.Transport(err, "failed to derive sync cursor")
	}
	fromBlock := cursor.Next(req.FromBlock)

	reader, release, err := s.readers.Open(ctx, req.RPCURL, treasury.ChainID)
	if errors.Is(err, ethereum.ErrChainMismatch) {
		return nil, apperr.Resolution("treasury %s is on chain %d: %v", treasury.ID, treasury.ChainID, err)
	}
	if err != nil {
		return nil, apperr.Transport(err, "failed to open RPC endpoint")
	}
	defer release()

	// Never mirror another chain's logs at the same address
	if got := reader.ChainID(); got != treasury.ChainID {
		return nil, apperr.Resolution("treasury %s is on chain %d, endpoint serves chain %d",
			treasury.ID, treasury.ChainID, got)
	}

	// Determine the upper bound
	head, err := reader.HeadBlockNumber(ctx)
	if err != nil {
		return nil, apperr.Transport(err, "failed to get head block")
	}
	toBlock := int64(head) - int64(s.config.BlockConfirmations)

	result = &SyncResult{
		Success:       true,
		SyncedFrom:    fromBlock,
		SyncedTo:      toBlock,
		Events:        []LedgerDTO{},
		Errors:        []string{},
		SkippedBlocks: []int64{},
	}

	if fromBlock > toBlock {
		s.logger.Debug("Treasury already up to date",
			zap.String("treasury_id", treasury.ID),
			zap.Int64("from_block", fromBlock),
			zap.Int64("to_block", toBlock),
		)
		return result, nil
	}

	// Fetch both log sets; any failure aborts before writing
	fetcher := ethereum.NewFetcher(reader, s.topics, s.config.BatchSize, s.config.WorkerCount, s.logger)
	logs, err := fetcher.FetchTreasuryLogs(ctx,
		common.HexToAddress(treasury.Address),
		common.HexToAddress(treasury.TokenAddress),
		fromBlock, toBlock,
	)
	if err != nil {
		return nil, apperr.Transport(err, "failed to fetch logs")
	}

	timestamps, failures := fetcher.FetchBlockTimestamps(ctx, logs)
	for block, ferr := range failures {
		metrics.TimestampFailuresTotal.Inc()
		s.logger.Warn("Failed to fetch block timestamp",
			zap.String("treasury_id", treasury.ID),
			zap.Uint64("block_number", block),
			zap.Error(ferr),
		)
		result.SkippedBlocks = append(result.SkippedBlocks, int64(block))
	}
	sort.Slice(result.SkippedBlocks, func(i, j int) bool {
		return result.SkippedBlocks[i] < result.SkippedBlocks[j]
	})

	// Insert in chain order
	for _, log := range logs {
		if ferr, failed := failures[log.BlockNumber]; failed {
			result.Errors = append(result.Errors,
				fmt.Sprintf("block %d log %d: timestamp unavailable: %v", log.BlockNumber, log.Index, ferr))
			continue
		}

		event, derr := s.decoder.Decode(log)
		if derr != nil {
			metrics.DecodeErrorsTotal.Inc()
			result.Errors = append(result.Errors, derr.Error())
			continue
		}

		entry := event.Entry(treasury.ID, timestamps[log.BlockNumber])
		inserted, ierr := s.ledgerRepo.InsertIfAbsent(ctx, &entry)
		if ierr != nil {
			s.invalidate(ctx, treasury.ID, result.EventsProcessed)
			return nil, apperr.Transport(ierr, "failed to store %s event %s:%d", entry.EventType, entry.TxHash, entry.LogIndex)
		}
		if !inserted {
			result.Duplicates++
			continue
		}

		result.EventsProcessed++
		result.Events = append(result.Events, toLedgerDTO(entry))
		metrics.EventsInsertedTotal.WithLabelValues(string(entry.EventType)).Inc()
	}

	metrics.DuplicatesTotal.Add(float64(result.Duplicates))
	metrics.LastSyncedBlock.Set(float64(toBlock))
	s.invalidate(ctx, treasury.ID, result.EventsProcessed)

	s.logger.Info("Synced treasury",
		zap.String("treasury_id", treasury.ID),
		zap.Int64("from_block", fromBlock),
		zap.Int64("to_block", toBlock),
		zap.Int("logs", len(logs)),
		zap.Int("inserted", result.EventsProcessed),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("errors", len(result.Errors)),
		zap.Int("skipped_blocks", len(result.SkippedBlocks)),
	)

	return result, nil
}

// resolve loads the treasury and checks it matches the request
func (s *IngestorService) resolve(ctx context.Context, req SyncRequest) (*entities.Treasury, error) {
	treasury, err := s.treasuryRepo.GetByID(ctx, req.TreasuryID)
	if err != nil {
		return nil, apperr.Transport(err, "failed to load treasury")
	}
	if treasury == nil {
		return nil, apperr.NotFound("treasury %s", req.TreasuryID)
	}
	if !strings.EqualFold(treasury.Address, req.TreasuryAddress) {
		return nil, apperr.Resolution("treasury %s is registered at %s, not %s",
			treasury.ID, treasury.Address, entities.NormalizeAddress(req.TreasuryAddress))
	}
	if strings.TrimSpace(treasury.TokenAddress) == "" {
		return nil, apperr.Resolution("treasury %s has no token address", treasury.ID)
	}
	return treasury, nil
}

func (s *IngestorService) invalidate(ctx context.Context, treasuryID string, inserted int) {
	if s.cache == nil || inserted == 0 {
		return
	}
	if err := s.cache.DeletePattern(ctx, cache.LedgerPattern(treasuryID)); err != nil {
		s.logger.Warn("Failed to invalidate ledger cache",
			zap.String("treasury_id", treasuryID),
			zap.Error(err),
		)
	}
}

func syncOutcome(result *SyncResult, err error) string {
	switch {
	case err == nil && result != nil && result.SyncedFrom > result.SyncedTo:
		return metrics.OutcomeNoop
	case err == nil:
		return metrics.OutcomeSuccess
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return metrics.OutcomeValidation
	case apperr.KindResolution:
		return metrics.OutcomeResolution
	case apperr.KindTransport:
		return metrics.OutcomeTransport
	}
	return metrics.OutcomeError
}
