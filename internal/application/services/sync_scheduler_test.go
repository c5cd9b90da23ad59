package services

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/config"
	"github.com/bimakw/treasury-sync/internal/testutil"
)

func TestSyncScheduler_RunOnce(t *testing.T) {
	f := setupIngestorTest(100)
	other := testutil.CreateTestTreasury(
		testutil.TreasuryWithID(testutil.OtherTreasuryID),
		testutil.TreasuryWithAddress(testutil.CharlieAddr),
	)
	// Treasury on another chain must be ignored
	foreign := testutil.CreateTestTreasury(
		testutil.TreasuryWithID("00000000-0000-4000-8000-0000000000ff"),
		testutil.TreasuryWithChainID(1),
	)
	f.treasury.AddTreasuries(other, foreign)
	f.chain.AddLogs(
		testutil.DepositLog(testutil.TokenAddress, testutil.AliceAddress, testutil.TreasuryAddress, 5, 10, 0),
		testutil.DepositLog(testutil.TokenAddress, testutil.AliceAddress, testutil.CharlieAddr, 5, 11, 0),
	)

	cfg := config.IndexerConfig{PollInterval: time.Hour, WorkerCount: 2}
	scheduler := NewSyncScheduler(f.service, f.treasury, testutil.TestChainID, cfg, zap.NewNop())

	scheduler.RunOnce(context.Background())

	stats := scheduler.Stats()
	if stats.Rounds != 1 || stats.TreasuriesRun != 2 {
		t.Errorf("expected 1 round over 2 treasuries, got %+v", stats)
	}
	if stats.EventsInserted != 2 || stats.Failures != 0 {
		t.Errorf("expected 2 inserts and no failures, got %+v", stats)
	}
}

func TestSyncScheduler_CountsFailures(t *testing.T) {
	f := setupIngestorTest(100)
	f.chain.HeadErr = context.DeadlineExceeded

	cfg := config.IndexerConfig{PollInterval: time.Hour, WorkerCount: 1}
	scheduler := NewSyncScheduler(f.service, f.treasury, testutil.TestChainID, cfg, zap.NewNop())

	scheduler.RunOnce(context.Background())

	if scheduler.Stats().Failures != 1 {
		t.Errorf("expected 1 failure, got %d", scheduler.Stats().Failures)
	}
}

func TestSyncScheduler_StartStop(t *testing.T) {
	f := setupIngestorTest(100)
	cfg := config.IndexerConfig{PollInterval: time.Hour, WorkerCount: 1}
	scheduler := NewSyncScheduler(f.service, f.treasury, testutil.TestChainID, cfg, zap.NewNop())

	scheduler.Start(context.Background())
	scheduler.Stop()
	scheduler.Stop()

	if scheduler.Stats().Rounds != 1 {
		t.Errorf("expected the immediate round to complete, got %d", scheduler.Stats().Rounds)
	}
}
