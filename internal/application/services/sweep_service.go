package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/domain/apperr"
	"github.com/bimakw/treasury-sync/internal/domain/entities"
	"github.com/bimakw/treasury-sync/internal/domain/repositories"
)

// SweepService runs the caller side of reconciliation: list an owner's
// treasuries, check their liveness, guard, then reconcile
type SweepService struct {
	treasuryRepo repositories.TreasuryRepository
	guard        *StaleGuard
	reconciler   *ReconcilerService
	logger       *zap.Logger
}

// NewSweepService creates a new sweep service
func NewSweepService(
	treasuryRepo repositories.TreasuryRepository,
	guard *StaleGuard,
	reconciler *ReconcilerService,
	logger *zap.Logger,
) *SweepService {
	return &SweepService{
		treasuryRepo: treasuryRepo,
		guard:        guard,
		reconciler:   reconciler,
		logger:       logger,
	}
}

// SweepResult is the outcome of one sweep
type SweepResult struct {
	Checked  []LivenessCheck
	Decision GuardDecision
	// Reconcile is nil on a dry run
	Reconcile *ReconcileResult
}

// Sweep reconciles owner's treasuries on chainID. With dryRun the guard
// decision is computed but nothing is deleted.
func (s *SweepService) Sweep(ctx context.Context, owner string, chainID int64, dryRun bool) (*SweepResult, error) {
	if !entities.IsValidAddress(owner) {
		return nil, apperr.Validation("owner must be a 0x-prefixed 40 hex digit address")
	}
	normalized := entities.NormalizeAddress(owner)

	treasuries, err := s.treasuryRepo.List(ctx, entities.TreasuryFilter{
		OwnerAddress: &normalized,
		ChainID:      &chainID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list treasuries: %w", err)
	}

	result := &SweepResult{}
	result.Checked = s.guard.Check(ctx, treasuries)
	result.Decision = s.guard.Decide(result.Checked)

	s.logger.Info("Liveness checked",
		zap.String("owner", normalized),
		zap.Int64("chain_id", chainID),
		zap.Int("treasuries", len(treasuries)),
		zap.Int("live", result.Decision.Live),
		zap.Int("gone", result.Decision.Gone),
		zap.Int("unknown", result.Decision.Unknown),
		zap.Int("candidates", len(result.Decision.Candidates)),
	)

	if dryRun {
		return result, nil
	}

	result.Reconcile, err = s.reconciler.Reconcile(ctx, ReconcileRequest{
		OwnerAddress:     normalized,
		ChainID:          chainID,
		StaleTreasuryIDs: result.Decision.Candidates,
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
