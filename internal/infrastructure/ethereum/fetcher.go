package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetcher fetches treasury logs and block timestamps from a Reader
type Fetcher struct {
	reader    Reader
	topics    TopicTable
	batchSize int
	workers   int
	logger    *zap.Logger
}

// NewFetcher creates a new log fetcher
func NewFetcher(reader Reader, topics TopicTable, batchSize, workers int, logger *zap.Logger) *Fetcher {
	if workers <= 0 {
		workers = 1
	}
	return &Fetcher{
		reader:    reader,
		topics:    topics,
		batchSize: batchSize,
		workers:   workers,
		logger:    logger,
	}
}

// PolicyLogQuery builds the Spend/Migration filter at the treasury address
func (f *Fetcher) PolicyLogQuery(treasury common.Address, fromBlock, toBlock int64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: []common.Address{treasury},
		Topics:    [][]common.Hash{f.topics.PolicyTopics()},
	}
}

// DepositLogQuery builds the Transfer filter at the token address, limited
// to transfers whose recipient is the treasury
func (f *Fetcher) DepositLogQuery(token, treasury common.Address, fromBlock, toBlock int64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: []common.Address{token},
		Topics: [][]common.Hash{
			{f.topics.Transfer},
			nil,
			{AddressTopic(treasury)},
		},
	}
}

// FetchTreasuryLogs fetches the policy and deposit log sets over
// [fromBlock, toBlock]. Either set failing fails the whole call so callers
// never see a partial result. Logs come back in chain order.
func (f *Fetcher) FetchTreasuryLogs(ctx context.Context, treasury, token common.Address, fromBlock, toBlock int64) ([]types.Log, error) {
	ranges := SplitBlockRange(fromBlock, toBlock, f.batchSize)
	if len(ranges) == 0 {
		return nil, nil
	}

	var policyLogs, depositLogs []types.Log

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logs, err := f.fetchRanges(gCtx, ranges, func(r BlockRange) ethereum.FilterQuery {
			return f.PolicyLogQuery(treasury, r.From, r.To)
		})
		if err != nil {
			return fmt.Errorf("failed to fetch policy logs: %w", err)
		}
		policyLogs = logs
		return nil
	})
	g.Go(func() error {
		logs, err := f.fetchRanges(gCtx, ranges, func(r BlockRange) ethereum.FilterQuery {
			return f.DepositLogQuery(token, treasury, r.From, r.To)
		})
		if err != nil {
			return fmt.Errorf("failed to fetch deposit logs: %w", err)
		}
		depositLogs = logs
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	logs := make([]types.Log, 0, len(policyLogs)+len(depositLogs))
	logs = append(logs, policyLogs...)
	logs = append(logs, depositLogs...)
	SortLogs(logs)

	f.logger.Debug("Fetched treasury logs",
		zap.String("treasury", treasury.Hex()),
		zap.Int64("from_block", fromBlock),
		zap.Int64("to_block", toBlock),
		zap.Int("policy_logs", len(policyLogs)),
		zap.Int("deposit_logs", len(depositLogs)),
	)

	return logs, nil
}

func (f *Fetcher) fetchRanges(ctx context.Context, ranges []BlockRange, build func(BlockRange) ethereum.FilterQuery) ([]types.Log, error) {
	var all []types.Log
	for _, r := range ranges {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		logs, err := f.reader.GetLogs(ctx, build(r))
		if err != nil {
			return nil, fmt.Errorf("blocks %d-%d: %w", r.From, r.To, err)
		}
		for _, l := range logs {
			if l.Removed {
				continue
			}
			all = append(all, l)
		}
	}
	return all, nil
}

// FetchBlockTimestamps resolves each distinct block once, concurrently.
// A failed block is reported in the error map and does not stop the others.
func (f *Fetcher) FetchBlockTimestamps(ctx context.Context, logs []types.Log) (map[uint64]time.Time, map[uint64]error) {
	blockNumbers := make(map[uint64]struct{})
	for _, log := range logs {
		blockNumbers[log.BlockNumber] = struct{}{}
	}

	timestamps := make(map[uint64]time.Time, len(blockNumbers))
	failures := make(map[uint64]error)
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(f.workers)

	for blockNum := range blockNumbers {
		blockNum := blockNum
		g.Go(func() error {
			timestamp, err := f.reader.GetBlockTimestamp(ctx, blockNum)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[blockNum] = err
				return nil
			}
			timestamps[blockNum] = timestamp
			return nil
		})
	}

	_ = g.Wait()

	return timestamps, failures
}

// BlockRange represents a range of blocks to fetch
type BlockRange struct {
	From int64
	To   int64
}

// SplitBlockRange splits a range into batches. A non-positive batch size
// yields the whole range as one batch.
func SplitBlockRange(fromBlock, toBlock int64, batchSize int) []BlockRange {
	if fromBlock > toBlock {
		return nil
	}
	if batchSize <= 0 {
		return []BlockRange{{From: fromBlock, To: toBlock}}
	}

	var ranges []BlockRange
	for current := fromBlock; current <= toBlock; current += int64(batchSize) {
		end := current + int64(batchSize) - 1
		if end > toBlock {
			end = toBlock
		}
		ranges = append(ranges, BlockRange{From: current, To: end})
	}

	return ranges
}
