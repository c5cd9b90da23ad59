package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/domain/apperr"
	"github.com/bimakw/treasury-sync/internal/domain/entities"
	"github.com/bimakw/treasury-sync/internal/domain/repositories"
)

// TreasuryService registers and looks up treasuries
type TreasuryService struct {
	treasuryRepo repositories.TreasuryRepository
	metadata     MetadataReader
	chainID      int64
	logger       *zap.Logger
}

// NewTreasuryService creates a new treasury service. metadata may be nil;
// when set it is only consulted for treasuries on chainID.
func NewTreasuryService(
	treasuryRepo repositories.TreasuryRepository,
	metadata MetadataReader,
	chainID int64,
	logger *zap.Logger,
) *TreasuryService {
	return &TreasuryService{
		treasuryRepo: treasuryRepo,
		metadata:     metadata,
		chainID:      chainID,
		logger:       logger,
	}
}

// RegisterRequest creates or updates a treasury
type RegisterRequest struct {
	ChainID           int64      `json:"chainId"`
	Address           string     `json:"address"`
	OwnerAddress      string     `json:"ownerAddress"`
	TokenAddress      string     `json:"tokenAddress"`
	MaxSpendPerPeriod *string    `json:"maxSpendPerPeriod,omitempty"`
	PeriodLength      *int64     `json:"periodLength,omitempty"`
	Expiry            *time.Time `json:"expiry,omitempty"`
	MigrationTarget   *string    `json:"migrationTarget,omitempty"`
}

// TreasuryDTO is the API representation of a treasury
type TreasuryDTO struct {
	ID                string  `json:"id"`
	ChainID           int64   `json:"chain_id"`
	Address           string  `json:"address"`
	OwnerAddress      string  `json:"owner_address"`
	TokenAddress      string  `json:"token_address"`
	TokenSymbol       *string `json:"token_symbol,omitempty"`
	TokenDecimals     *int    `json:"token_decimals,omitempty"`
	MaxSpendPerPeriod *string `json:"max_spend_per_period,omitempty"`
	PeriodLength      *int64  `json:"period_length,omitempty"`
	Expiry            *string `json:"expiry,omitempty"`
	MigrationTarget   *string `json:"migration_target,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

// TreasuryListResponse is the API response for treasury listings
type TreasuryListResponse struct {
	Treasuries []TreasuryDTO `json:"treasuries"`
	Total      int           `json:"total"`
}

func toTreasuryDTO(t *entities.Treasury) TreasuryDTO {
	dto := TreasuryDTO{
		ID:                t.ID,
		ChainID:           t.ChainID,
		Address:           t.Address,
		OwnerAddress:      t.OwnerAddress,
		TokenAddress:      t.TokenAddress,
		TokenSymbol:       t.TokenSymbol,
		TokenDecimals:     t.TokenDecimals,
		MaxSpendPerPeriod: t.MaxSpendPerPeriod,
		PeriodLength:      t.PeriodLength,
		MigrationTarget:   t.MigrationTarget,
		CreatedAt:         t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if t.Expiry != nil {
		expiry := t.Expiry.UTC().Format(time.RFC3339)
		dto.Expiry = &expiry
	}
	return dto
}

// Register validates and upserts a treasury keyed by (chainId, address)
func (s *TreasuryService) Register(ctx context.Context, req RegisterRequest) (*TreasuryDTO, error) {
	treasury, err := req.toTreasury()
	if err != nil {
		return nil, err
	}

	// Token metadata is display-only; a failed read leaves it empty
	if s.metadata != nil && treasury.ChainID == s.chainID {
		treasury.TokenSymbol, treasury.TokenDecimals = s.metadata.Read(ctx, common.HexToAddress(treasury.TokenAddress))
	}

	err = s.treasuryRepo.Upsert(ctx, treasury)
	if errors.Is(err, repositories.ErrOwnerConflict) {
		return nil, apperr.Validation("treasury %s on chain %d is registered to another owner", treasury.Address, treasury.ChainID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to register treasury: %w", err)
	}

	s.logger.Info("Registered treasury",
		zap.String("treasury_id", treasury.ID),
		zap.Int64("chain_id", treasury.ChainID),
		zap.String("address", treasury.Address),
		zap.String("owner", treasury.OwnerAddress),
	)

	dto := toTreasuryDTO(treasury)
	return &dto, nil
}

func (r RegisterRequest) toTreasury() (*entities.Treasury, error) {
	if r.ChainID <= 0 {
		return nil, apperr.Validation("chainId must be a positive integer")
	}
	for _, field := range []struct{ name, value string }{
		{"address", r.Address},
		{"ownerAddress", r.OwnerAddress},
		{"tokenAddress", r.TokenAddress},
	} {
		if !entities.IsValidAddress(field.value) {
			return nil, apperr.Validation("%s must be a 0x-prefixed 40 hex digit address", field.name)
		}
	}

	treasury := &entities.Treasury{
		ChainID:      r.ChainID,
		Address:      entities.NormalizeAddress(r.Address),
		OwnerAddress: entities.NormalizeAddress(r.OwnerAddress),
		TokenAddress: entities.NormalizeAddress(r.TokenAddress),
		PeriodLength: r.PeriodLength,
		Expiry:       r.Expiry,
	}

	if r.MaxSpendPerPeriod != nil {
		amount, err := CanonicalAmount(*r.MaxSpendPerPeriod)
		if err != nil {
			return nil, err
		}
		treasury.MaxSpendPerPeriod = &amount
	}
	if r.PeriodLength != nil && *r.PeriodLength < 0 {
		return nil, apperr.Validation("periodLength must be non-negative")
	}
	if r.MigrationTarget != nil && *r.MigrationTarget != "" {
		if !entities.IsValidAddress(*r.MigrationTarget) {
			return nil, apperr.Validation("migrationTarget must be a 0x-prefixed 40 hex digit address")
		}
		target := entities.NormalizeAddress(*r.MigrationTarget)
		treasury.MigrationTarget = &target
	}

	return treasury, nil
}

// GetTreasury returns one treasury by id
func (s *TreasuryService) GetTreasury(ctx context.Context, id string) (*TreasuryDTO, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.Validation("treasury id must be a UUID")
	}

	treasury, err := s.treasuryRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get treasury: %w", err)
	}
	if treasury == nil {
		return nil, apperr.NotFound("treasury %s", id)
	}

	dto := toTreasuryDTO(treasury)
	return &dto, nil
}

// ListTreasuries returns the treasuries of an owner, optionally on one chain
func (s *TreasuryService) ListTreasuries(ctx context.Context, owner string, chainID *int64) (*TreasuryListResponse, error) {
	if !entities.IsValidAddress(owner) {
		return nil, apperr.Validation("owner must be a 0x-prefixed 40 hex digit address")
	}
	if chainID != nil && *chainID <= 0 {
		return nil, apperr.Validation("chain_id must be a positive integer")
	}

	normalized := strings.ToLower(owner)
	treasuries, err := s.treasuryRepo.List(ctx, entities.TreasuryFilter{
		OwnerAddress: &normalized,
		ChainID:      chainID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list treasuries: %w", err)
	}

	dtos := make([]TreasuryDTO, len(treasuries))
	for i := range treasuries {
		dtos[i] = toTreasuryDTO(&treasuries[i])
	}

	return &TreasuryListResponse{
		Treasuries: dtos,
		Total:      len(dtos),
	}, nil
}
