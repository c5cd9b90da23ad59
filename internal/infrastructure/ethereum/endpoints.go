package ethereum

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/config"
)

// ErrChainMismatch is returned by Open when the endpoint serves another chain
var ErrChainMismatch = errors.New("endpoint serves a different chain")

// Endpoints hands out a Reader for the default node or an allow-listed
// override
type Endpoints struct {
	defaultClient *Client
	config        config.EthereumConfig
	logger        *zap.Logger
}

// NewEndpoints creates an endpoint provider around the default client
func NewEndpoints(defaultClient *Client, cfg config.EthereumConfig, logger *zap.Logger) *Endpoints {
	return &Endpoints{
		defaultClient: defaultClient,
		config:        cfg,
		logger:        logger,
	}
}

// Allowed reports whether rpcURL may be selected by a caller
func (e *Endpoints) Allowed(rpcURL string) bool {
	return e.config.IsAllowedRPCURL(rpcURL)
}

// Open returns a Reader for rpcURL on chainID and a release func. An empty
// rpcURL or the default endpoint reuse the shared client.
func (e *Endpoints) Open(ctx context.Context, rpcURL string, chainID int64) (Reader, func(), error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" || (e.defaultClient != nil && rpcURL == e.defaultClient.RPCURL()) {
		if e.defaultClient == nil {
			return nil, nil, errors.New("no default RPC endpoint configured")
		}
		if got := e.defaultClient.ChainID(); got != chainID {
			return nil, nil, fmt.Errorf("%w: want chain %d, default endpoint is on chain %d", ErrChainMismatch, chainID, got)
		}
		return e.defaultClient, func() {}, nil
	}

	client, err := Dial(ctx, rpcURL, e.config, e.logger)
	if err != nil {
		return nil, nil, err
	}
	if got := client.ChainID(); got != chainID {
		client.Close()
		e.logger.Warn("Rejected RPC endpoint on another chain",
			zap.String("rpc_url", rpcURL),
			zap.Int64("want_chain_id", chainID),
			zap.Int64("chain_id", got),
		)
		return nil, nil, fmt.Errorf("%w: want chain %d, %s is on chain %d", ErrChainMismatch, chainID, rpcURL, got)
	}
	return client, client.Close, nil
}
