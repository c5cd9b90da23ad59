package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/domain/apperr"
	"github.com/bimakw/treasury-sync/internal/domain/entities"
	"github.com/bimakw/treasury-sync/internal/domain/repositories"
	"github.com/bimakw/treasury-sync/internal/infrastructure/cache"
	"github.com/bimakw/treasury-sync/internal/infrastructure/metrics"
)

// ReconcilerService deletes treasuries a liveness check found to have no
// deployed code
type ReconcilerService struct {
	treasuryRepo repositories.TreasuryRepository
	cache        PageCache
	logger       *zap.Logger
}

// NewReconcilerService creates a new reconciler service
func NewReconcilerService(treasuryRepo repositories.TreasuryRepository, cache PageCache, logger *zap.Logger) *ReconcilerService {
	return &ReconcilerService{
		treasuryRepo: treasuryRepo,
		cache:        cache,
		logger:       logger,
	}
}

// ReconcileRequest names the stale candidates of one owner on one chain
type ReconcileRequest struct {
	OwnerAddress     string
	ChainID          int64
	StaleTreasuryIDs []string
}

// ReconcileResult reports how many candidates were submitted and removed
type ReconcileResult struct {
	ChainID      int64  `json:"chainId"`
	OwnerAddress string `json:"ownerAddress"`
	Scanned      int    `json:"scanned"`
	Deleted      int    `json:"deleted"`
}

// Reconcile deletes the candidates that belong to the owner on the chain.
// Candidates owned by someone else, on another chain, or that are not
// UUIDs are ignored.
func (s *ReconcilerService) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	if !entities.IsValidAddress(req.OwnerAddress) {
		return nil, apperr.Validation("ownerAddress must be a 0x-prefixed 40 hex digit address")
	}
	if req.ChainID <= 0 {
		return nil, apperr.Validation("chainId must be a positive integer")
	}

	owner := entities.NormalizeAddress(req.OwnerAddress)
	result := &ReconcileResult{
		ChainID:      req.ChainID,
		OwnerAddress: owner,
		Scanned:      len(req.StaleTreasuryIDs),
	}

	ids := validIDs(req.StaleTreasuryIDs)
	if len(ids) == 0 {
		return result, nil
	}

	deleted, err := s.treasuryRepo.DeleteOwned(ctx, owner, req.ChainID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to delete stale treasuries: %w", err)
	}
	result.Deleted = len(deleted)
	metrics.ReconcileDeletedTotal.Add(float64(result.Deleted))

	if s.cache != nil {
		for _, id := range deleted {
			if err := s.cache.DeletePattern(ctx, cache.LedgerPattern(id)); err != nil {
				s.logger.Warn("Failed to invalidate ledger cache", zap.String("treasury_id", id), zap.Error(err))
			}
		}
	}

	s.logger.Info("Reconciled stale treasuries",
		zap.String("owner", owner),
		zap.Int64("chain_id", req.ChainID),
		zap.Int("scanned", result.Scanned),
		zap.Int("candidates", len(ids)),
		zap.Strings("deleted", deleted),
	)

	return result, nil
}

// validIDs keeps the canonical form of every UUID candidate, once
func validIDs(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	ids := make([]string, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		canonical := id.String()
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		ids = append(ids, canonical)
	}
	return ids
}
