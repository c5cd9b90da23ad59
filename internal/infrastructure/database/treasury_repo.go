package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bimakw/treasury-sync/internal/domain/entities"
	"github.com/bimakw/treasury-sync/internal/domain/repositories"
)

// Ensure TreasuryRepo implements TreasuryRepository
var _ repositories.TreasuryRepository = (*TreasuryRepo)(nil)

const treasuryColumns = `id, chain_id, address, owner_address, token_address, token_symbol,
	token_decimals, max_spend_per_period::TEXT AS max_spend_per_period, period_length,
	expiry, migration_target, created_at, updated_at`

// TreasuryRepo implements TreasuryRepository using PostgreSQL
type TreasuryRepo struct {
	db *sqlx.DB
}

// NewTreasuryRepo creates a new treasury repository
func NewTreasuryRepo(db *sqlx.DB) *TreasuryRepo {
	return &TreasuryRepo{db: db}
}

// GetByID retrieves a treasury by id
func (r *TreasuryRepo) GetByID(ctx context.Context, id string) (*entities.Treasury, error) {
	query := `SELECT ` + treasuryColumns + ` FROM treasuries WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByAddress retrieves a treasury by chain and address
func (r *TreasuryRepo) GetByAddress(ctx context.Context, chainID int64, address string) (*entities.Treasury, error) {
	query := `SELECT ` + treasuryColumns + ` FROM treasuries WHERE chain_id = $1 AND address = $2`
	return r.getOne(ctx, query, chainID, strings.ToLower(address))
}

func (r *TreasuryRepo) getOne(ctx context.Context, query string, args ...interface{}) (*entities.Treasury, error) {
	var treasury entities.Treasury
	if err := r.db.GetContext(ctx, &treasury, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get treasury: %w", err)
	}
	return &treasury, nil
}

// List retrieves treasuries matching the filter, oldest first
func (r *TreasuryRepo) List(ctx context.Context, filter entities.TreasuryFilter) ([]entities.Treasury, error) {
	var conditions []string
	var args []interface{}
	argIdx := 1

	if filter.OwnerAddress != nil {
		conditions = append(conditions, fmt.Sprintf("owner_address = $%d", argIdx))
		args = append(args, strings.ToLower(*filter.OwnerAddress))
		argIdx++
	}

	if filter.ChainID != nil {
		conditions = append(conditions, fmt.Sprintf("chain_id = $%d", argIdx))
		args = append(args, *filter.ChainID)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT %s FROM treasuries %s ORDER BY created_at ASC, id ASC`, treasuryColumns, whereClause)

	var treasuries []entities.Treasury
	if err := r.db.SelectContext(ctx, &treasuries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list treasuries: %w", err)
	}

	return treasuries, nil
}

// Upsert creates or updates a treasury keyed by (chain_id, address). The
// conflict update only applies for the same owner.
func (r *TreasuryRepo) Upsert(ctx context.Context, treasury *entities.Treasury) error {
	if treasury.ID == "" {
		treasury.ID = uuid.NewString()
	}

	query := `
		INSERT INTO treasuries (id, chain_id, address, owner_address, token_address, token_symbol,
			token_decimals, max_spend_per_period, period_length, expiry, migration_target)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (chain_id, address) DO UPDATE SET
			token_address = EXCLUDED.token_address,
			token_symbol = COALESCE(EXCLUDED.token_symbol, treasuries.token_symbol),
			token_decimals = COALESCE(EXCLUDED.token_decimals, treasuries.token_decimals),
			max_spend_per_period = EXCLUDED.max_spend_per_period,
			period_length = EXCLUDED.period_length,
			expiry = EXCLUDED.expiry,
			migration_target = EXCLUDED.migration_target,
			updated_at = NOW()
		WHERE treasuries.owner_address = EXCLUDED.owner_address
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		treasury.ID,
		treasury.ChainID,
		strings.ToLower(treasury.Address),
		strings.ToLower(treasury.OwnerAddress),
		strings.ToLower(treasury.TokenAddress),
		treasury.TokenSymbol,
		treasury.TokenDecimals,
		treasury.MaxSpendPerPeriod,
		treasury.PeriodLength,
		treasury.Expiry,
		treasury.MigrationTarget,
	).Scan(&treasury.ID, &treasury.CreatedAt, &treasury.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return repositories.ErrOwnerConflict
	}
	if err != nil {
		return fmt.Errorf("failed to upsert treasury: %w", err)
	}

	return nil
}

// DeleteOwned deletes the ids owned by ownerAddress on chainID in one
// statement; ids outside that scope are left untouched
func (r *TreasuryRepo) DeleteOwned(ctx context.Context, ownerAddress string, chainID int64, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		DELETE FROM treasuries
		WHERE owner_address = $1 AND chain_id = $2 AND id = ANY($3::uuid[])
		RETURNING id
	`

	var deleted []string
	if err := r.db.SelectContext(ctx, &deleted, query, strings.ToLower(ownerAddress), chainID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to delete treasuries: %w", err)
	}

	return deleted, nil
}
