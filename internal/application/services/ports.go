package services

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/treasury-sync/internal/infrastructure/ethereum"
)

// ReaderProvider hands out chain readers, optionally for an allow-listed
// override endpoint. Open fails with ethereum.ErrChainMismatch when the
// endpoint is not on chainID.
type ReaderProvider interface {
	Allowed(rpcURL string) bool
	Open(ctx context.Context, rpcURL string, chainID int64) (ethereum.Reader, func(), error)
}

// PageCache stores JSON pages and invalidates them by glob pattern
type PageCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	DeletePattern(ctx context.Context, pattern string) error
}

// MetadataReader reads display metadata of a token
type MetadataReader interface {
	Read(ctx context.Context, token common.Address) (symbol *string, decimals *int)
}
