package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/domain/apperr"
	"github.com/bimakw/treasury-sync/internal/domain/entities"
	"github.com/bimakw/treasury-sync/internal/domain/repositories"
	"github.com/bimakw/treasury-sync/internal/infrastructure/cache"
	"github.com/bimakw/treasury-sync/internal/infrastructure/metrics"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// maxAmountDigits matches the NUMERIC(78,0) amount column
const maxAmountDigits = 78

// LedgerService provides ledger queries and direct writes
type LedgerService struct {
	ledgerRepo   repositories.LedgerRepository
	treasuryRepo repositories.TreasuryRepository
	cache        PageCache
	logger       *zap.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	ledgerRepo repositories.LedgerRepository,
	treasuryRepo repositories.TreasuryRepository,
	cache PageCache,
	logger *zap.Logger,
) *LedgerService {
	return &LedgerService{
		ledgerRepo:   ledgerRepo,
		treasuryRepo: treasuryRepo,
		cache:        cache,
		logger:       logger,
	}
}

// LedgerDTO is the API representation of a ledger entry
type LedgerDTO struct {
	TxHash         string `json:"tx_hash"`
	LogIndex       int    `json:"log_index"`
	EventType      string `json:"event_type"`
	FromAddress    string `json:"from_address"`
	ToAddress      string `json:"to_address"`
	Amount         string `json:"amount"`
	PeriodIndex    *int64 `json:"period_index,omitempty"`
	BlockNumber    int64  `json:"block_number"`
	BlockTimestamp string `json:"block_timestamp"`
}

// LedgerPage is the API response for ledger queries
type LedgerPage struct {
	TreasuryID   string      `json:"treasury_id"`
	Transactions []LedgerDTO `json:"transactions"`
	Total        int64       `json:"total"`
	Limit        int         `json:"limit"`
	Offset       int         `json:"offset"`
	HasMore      bool        `json:"has_more"`
}

func toLedgerDTO(e entities.LedgerEntry) LedgerDTO {
	return LedgerDTO{
		TxHash:         e.TxHash,
		LogIndex:       e.LogIndex,
		EventType:      string(e.EventType),
		FromAddress:    e.FromAddress,
		ToAddress:      e.ToAddress,
		Amount:         e.Amount,
		PeriodIndex:    e.PeriodIndex,
		BlockNumber:    e.BlockNumber,
		BlockTimestamp: e.BlockTimestamp.UTC().Format(time.RFC3339),
	}
}

// GetTransactions returns one page of a treasury's ledger, newest first
func (s *LedgerService) GetTransactions(ctx context.Context, filter entities.LedgerFilter) (*LedgerPage, error) {
	id, err := uuid.Parse(filter.TreasuryID)
	if err != nil {
		return nil, apperr.Validation("treasury id must be a UUID")
	}
	// Cache keys and invalidation patterns use the canonical id
	filter.TreasuryID = id.String()

	eventType := ""
	if filter.EventType != nil {
		eventType = string(*filter.EventType)
	}
	cacheKey := cache.LedgerPageKey(filter.TreasuryID, eventType, filter.Limit, filter.Offset)

	// Try cache first
	if s.cache != nil {
		var cached LedgerPage
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	treasury, err := s.treasuryRepo.GetByID(ctx, filter.TreasuryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get treasury: %w", err)
	}
	if treasury == nil {
		return nil, apperr.NotFound("treasury %s", filter.TreasuryID)
	}

	// Query database
	entries, err := s.ledgerRepo.GetByFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}

	total, err := s.ledgerRepo.GetCount(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger count: %w", err)
	}

	dtos := make([]LedgerDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toLedgerDTO(e)
	}

	page := &LedgerPage{
		TreasuryID:   filter.TreasuryID,
		Transactions: dtos,
		Total:        total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
		HasMore:      int64(filter.Offset+len(entries)) < total,
	}

	// Cache the response
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, page); err != nil {
			s.logger.Warn("Failed to cache response", zap.Error(err))
		}
	}

	return page, nil
}

// RecordRequest is a just-confirmed transaction written by the dashboard
// ahead of the next sync run
type RecordRequest struct {
	TxHash         string    `json:"txHash"`
	LogIndex       int       `json:"logIndex"`
	EventType      string    `json:"eventType"`
	FromAddress    string    `json:"fromAddress"`
	ToAddress      string    `json:"toAddress"`
	Amount         string    `json:"amount"`
	PeriodIndex    *int64    `json:"periodIndex,omitempty"`
	BlockNumber    int64     `json:"blockNumber"`
	BlockTimestamp time.Time `json:"blockTimestamp"`
}

// RecordResult reports whether a direct write created a row
type RecordResult struct {
	Inserted bool      `json:"inserted"`
	Entry    LedgerDTO `json:"entry"`
}

// Record validates and stores a single ledger entry through the same
// idempotent insert the ingestor uses
func (s *LedgerService) Record(ctx context.Context, treasuryID string, req RecordRequest) (*RecordResult, error) {
	entry, err := req.toEntry(treasuryID)
	if err != nil {
		return nil, err
	}

	treasuryID = entry.TreasuryID

	treasury, err := s.treasuryRepo.GetByID(ctx, treasuryID)
	if err != nil {
		return nil, apperr.Transport(err, "failed to load treasury")
	}
	if treasury == nil {
		return nil, apperr.NotFound("treasury %s", treasuryID)
	}

	inserted, err := s.ledgerRepo.InsertIfAbsent(ctx, entry)
	if err != nil {
		return nil, apperr.Transport(err, "failed to store ledger entry")
	}

	if inserted {
		metrics.EventsInsertedTotal.WithLabelValues(string(entry.EventType)).Inc()
		if s.cache != nil {
			if err := s.cache.DeletePattern(ctx, cache.LedgerPattern(treasuryID)); err != nil {
				s.logger.Warn("Failed to invalidate ledger cache", zap.Error(err))
			}
		}
	}

	s.logger.Info("Recorded ledger entry",
		zap.String("treasury_id", treasuryID),
		zap.String("tx_hash", entry.TxHash),
		zap.String("event_type", string(entry.EventType)),
		zap.Bool("inserted", inserted),
	)

	return &RecordResult{Inserted: inserted, Entry: toLedgerDTO(*entry)}, nil
}

func (r RecordRequest) toEntry(treasuryID string) (*entities.LedgerEntry, error) {
	id, err := uuid.Parse(treasuryID)
	if err != nil {
		return nil, apperr.Validation("treasury id must be a UUID")
	}
	if !txHashPattern.MatchString(r.TxHash) {
		return nil, apperr.Validation("txHash must be a 0x-prefixed 64 hex digit hash")
	}
	if r.LogIndex < 0 {
		return nil, apperr.Validation("logIndex must be non-negative")
	}
	kind, ok := entities.ParseEventKind(r.EventType)
	if !ok {
		return nil, apperr.Validation("eventType %q is not one of deposit, fund, spend, migration, withdraw", r.EventType)
	}
	if !entities.IsValidAddress(r.FromAddress) || !entities.IsValidAddress(r.ToAddress) {
		return nil, apperr.Validation("fromAddress and toAddress must be 0x-prefixed 40 hex digit addresses")
	}
	amount, err := CanonicalAmount(r.Amount)
	if err != nil {
		return nil, err
	}
	if r.PeriodIndex != nil && (!kind.HasPeriodIndex() || *r.PeriodIndex < 0) {
		return nil, apperr.Validation("periodIndex is only valid as a non-negative value on spend and migration")
	}
	if r.BlockNumber < 0 {
		return nil, apperr.Validation("blockNumber must be non-negative")
	}
	if r.BlockTimestamp.IsZero() {
		return nil, apperr.Validation("blockTimestamp is required")
	}

	return &entities.LedgerEntry{
		TreasuryID:     id.String(),
		TxHash:         strings.ToLower(r.TxHash),
		LogIndex:       r.LogIndex,
		EventType:      kind,
		FromAddress:    entities.NormalizeAddress(r.FromAddress),
		ToAddress:      entities.NormalizeAddress(r.ToAddress),
		Amount:         amount,
		PeriodIndex:    r.PeriodIndex,
		BlockNumber:    r.BlockNumber,
		BlockTimestamp: r.BlockTimestamp.UTC(),
	}, nil
}

// CanonicalAmount parses a non-negative integer amount and returns it as a
// plain decimal string ("1.0e3" becomes "1000")
func CanonicalAmount(raw string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return "", apperr.Validation("amount %q is not a number", raw)
	}
	if d.IsNegative() {
		return "", apperr.Validation("amount must be non-negative")
	}
	if !d.Equal(d.Truncate(0)) {
		return "", apperr.Validation("amount must be an integer in base units")
	}
	canonical := d.BigInt().String()
	if len(canonical) > maxAmountDigits {
		return "", apperr.Validation("amount exceeds %d digits", maxAmountDigits)
	}
	return canonical, nil
}
