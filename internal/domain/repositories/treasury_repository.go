package repositories

import (
	"context"
	"errors"

	"github.com/bimakw/treasury-sync/internal/domain/entities"
)

// ErrOwnerConflict is returned by Upsert when (chain_id, address) is
// already registered to a different owner
var ErrOwnerConflict = errors.New("treasury is registered to another owner")

// TreasuryRepository defines the interface for treasury data operations
type TreasuryRepository interface {
	// GetByID retrieves a treasury by id, nil when absent
	GetByID(ctx context.Context, id string) (*entities.Treasury, error)

	// GetByAddress retrieves a treasury by chain and address, nil when absent
	GetByAddress(ctx context.Context, chainID int64, address string) (*entities.Treasury, error)

	// List retrieves treasuries matching the filter
	List(ctx context.Context, filter entities.TreasuryFilter) ([]entities.Treasury, error)

	// Upsert creates or updates a treasury keyed by (chain_id, address) and
	// fills in its id and timestamps. The owner of an existing row never
	// changes; a different owner gets ErrOwnerConflict.
	Upsert(ctx context.Context, treasury *entities.Treasury) error

	// DeleteOwned removes the given ids that belong to owner on chainID and
	// returns the ids actually removed. Ledger rows cascade.
	DeleteOwned(ctx context.Context, ownerAddress string, chainID int64, ids []string) ([]string, error)
}
