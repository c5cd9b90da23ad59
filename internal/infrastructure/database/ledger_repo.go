package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bimakw/treasury-sync/internal/domain/entities"
	"github.com/bimakw/treasury-sync/internal/domain/repositories"
)

// Ensure LedgerRepo implements LedgerRepository
var _ repositories.LedgerRepository = (*LedgerRepo)(nil)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// LedgerRepo implements LedgerRepository using PostgreSQL
type LedgerRepo struct {
	db *sqlx.DB
}

// NewLedgerRepo creates a new ledger repository
func NewLedgerRepo(db *sqlx.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// InsertIfAbsent inserts the entry keyed by (treasury_id, tx_hash, event_type, log_index).
// Losing a race on the key is reported as (false, nil).
func (r *LedgerRepo) InsertIfAbsent(ctx context.Context, entry *entities.LedgerEntry) (bool, error) {
	query := `
		INSERT INTO treasury_transactions (treasury_id, tx_hash, log_index, event_type,
			from_address, to_address, amount, period_index, block_number, block_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (treasury_id, tx_hash, event_type, log_index) DO NOTHING
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		entry.TreasuryID,
		entry.TxHash,
		entry.LogIndex,
		string(entry.EventType),
		entry.FromAddress,
		entry.ToAddress,
		entry.Amount,
		entry.PeriodIndex,
		entry.BlockNumber,
		entry.BlockTimestamp,
	).Scan(&entry.ID, &entry.CreatedAt)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case isUniqueViolation(err):
		return false, nil
	}

	return false, fmt.Errorf("failed to insert ledger entry: %w", err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// GetCursor derives the sync cursor from the highest recorded block
func (r *LedgerRepo) GetCursor(ctx context.Context, treasuryID string) (entities.SyncCursor, error) {
	query := `SELECT MAX(block_number) FROM treasury_transactions WHERE treasury_id = $1`

	var last sql.NullInt64
	if err := r.db.GetContext(ctx, &last, query, treasuryID); err != nil {
		return entities.SyncCursor{}, fmt.Errorf("failed to get latest block: %w", err)
	}

	cursor := entities.SyncCursor{TreasuryID: treasuryID}
	if last.Valid {
		block := last.Int64
		cursor.LastRecordedBlock = &block
	}
	return cursor, nil
}

// GetByFilter retrieves ledger entries matching the given filter
func (r *LedgerRepo) GetByFilter(ctx context.Context, filter entities.LedgerFilter) ([]entities.LedgerEntry, error) {
	query, args := r.buildFilterQuery(filter, false)

	var entries []entities.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}

	return entries, nil
}

// GetCount returns the count of ledger entries matching the filter
func (r *LedgerRepo) GetCount(ctx context.Context, filter entities.LedgerFilter) (int64, error) {
	query, args := r.buildFilterQuery(filter, true)

	var count int64
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to get ledger count: %w", err)
	}

	return count, nil
}

// buildFilterQuery builds the SQL query for filtering ledger entries
func (r *LedgerRepo) buildFilterQuery(filter entities.LedgerFilter, countOnly bool) (string, []interface{}) {
	conditions := []string{"treasury_id = $1"}
	args := []interface{}{filter.TreasuryID}
	argIdx := 2

	if filter.EventType != nil {
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", argIdx))
		args = append(args, string(*filter.EventType))
		argIdx++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	if countOnly {
		return fmt.Sprintf("SELECT COUNT(*) FROM treasury_transactions %s", whereClause), args
	}

	query := fmt.Sprintf(`
		SELECT id, treasury_id, tx_hash, log_index, event_type, from_address, to_address,
			   amount::TEXT AS amount, period_index, block_number, block_timestamp, created_at
		FROM treasury_transactions
		%s
		ORDER BY block_number DESC, log_index DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIdx, argIdx+1)

	args = append(args, filter.Limit, filter.Offset)

	return query, args
}
