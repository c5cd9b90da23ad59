package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/config"
)

// Reader is the chain surface the ingestor consumes
type Reader interface {
	// HeadBlockNumber returns the current head (eth_blockNumber)
	HeadBlockNumber(ctx context.Context) (uint64, error)
	// GetLogs runs eth_getLogs
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	// GetBlockTimestamp returns a block's timestamp (eth_getBlockByNumber, false)
	GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
	// ChainID is the chain the endpoint reported when it was dialed
	ChainID() int64
}

// CodeReader reports deployed bytecode (eth_getCode)
type CodeReader interface {
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)
}

// Client wraps the Ethereum client with retry logic and utilities
type Client struct {
	client  *ethclient.Client
	config  config.EthereumConfig
	logger  *zap.Logger
	chainID *big.Int
	rpcURL  string
}

var (
	_ Reader     = (*Client)(nil)
	_ CodeReader = (*Client)(nil)
)

// NewClient connects to the configured node and checks its chain ID
func NewClient(cfg config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	c, err := Dial(ctx, cfg.RPCURL, cfg, logger)
	if err != nil {
		return nil, err
	}

	if c.chainID.Int64() != cfg.ChainID {
		c.Close()
		return nil, fmt.Errorf("chain ID mismatch: expected %d, got %d", cfg.ChainID, c.chainID.Int64())
	}

	return c, nil
}

// Dial connects to rpcURL using the retry settings from cfg
func Dial(ctx context.Context, rpcURL string, cfg config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	logger.Info("Connected to Ethereum node",
		zap.String("rpc_url", rpcURL),
		zap.Int64("chain_id", chainID.Int64()),
	)

	return &Client{
		client:  client,
		config:  cfg,
		logger:  logger,
		chainID: chainID,
		rpcURL:  rpcURL,
	}, nil
}

// Close closes the Ethereum client connection
func (c *Client) Close() {
	c.client.Close()
}

// retry runs call up to MaxRetries+1 times
func retry[T any](c *Client, ctx context.Context, op string, call func() (T, error), fields ...zap.Field) (T, error) {
	var result T
	var err error

	for i := 0; i <= c.config.MaxRetries; i++ {
		result, err = call()
		if err == nil {
			return result, nil
		}

		c.logger.Warn("RPC call failed, retrying",
			append(fields,
				zap.String("op", op),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)...,
		)

		if i < c.config.MaxRetries {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}
	}

	return result, fmt.Errorf("%s failed after %d retries: %w", op, c.config.MaxRetries, err)
}

// HeadBlockNumber returns the latest block number
func (c *Client) HeadBlockNumber(ctx context.Context) (uint64, error) {
	return retry(c, ctx, "eth_blockNumber", func() (uint64, error) {
		return c.client.BlockNumber(ctx)
	})
}

// GetLogs retrieves logs matching the filter query
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return retry(c, ctx, "eth_getLogs", func() ([]types.Log, error) {
		return c.client.FilterLogs(ctx, query)
	}, zap.Int("addresses", len(query.Addresses)))
}

// GetBlockTimestamp returns the timestamp of a block from its header
func (c *Client) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	header, err := retry(c, ctx, "eth_getBlockByNumber", func() (*types.Header, error) {
		return c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	}, zap.Uint64("block_number", blockNumber))
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// CodeAt returns the bytecode deployed at address on the latest block
func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return retry(c, ctx, "eth_getCode", func() ([]byte, error) {
		return c.client.CodeAt(ctx, address, nil)
	}, zap.String("address", address.Hex()))
}

// CallContract executes a read-only eth_call against address
func (c *Client) CallContract(ctx context.Context, address common.Address, data []byte) ([]byte, error) {
	return retry(c, ctx, "eth_call", func() ([]byte, error) {
		return c.client.CallContract(ctx, ethereum.CallMsg{To: &address, Data: data}, nil)
	}, zap.String("address", address.Hex()))
}

// ChainID returns the chain ID
func (c *Client) ChainID() int64 {
	return c.chainID.Int64()
}

// RPCURL returns the endpoint this client is connected to
func (c *Client) RPCURL() string {
	return c.rpcURL
}

// HealthCheck checks that the node answers eth_blockNumber
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.client.BlockNumber(ctx)
	return err
}
