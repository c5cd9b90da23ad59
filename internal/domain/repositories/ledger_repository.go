package repositories

import (
	"context"

	"github.com/bimakw/treasury-sync/internal/domain/entities"
)

// LedgerRepository defines the interface for ledger entry operations
type LedgerRepository interface {
	// InsertIfAbsent stores the entry unless its dedup key already exists.
	// It reports whether a new row was written.
	InsertIfAbsent(ctx context.Context, entry *entities.LedgerEntry) (bool, error)

	// GetCursor derives the sync cursor from the treasury's recorded entries
	GetCursor(ctx context.Context, treasuryID string) (entities.SyncCursor, error)

	// GetByFilter retrieves entries matching the filter, newest first
	GetByFilter(ctx context.Context, filter entities.LedgerFilter) ([]entities.LedgerEntry, error)

	// GetCount returns the count of entries matching the filter
	GetCount(ctx context.Context, filter entities.LedgerFilter) (int64, error)
}
