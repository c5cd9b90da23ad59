package services

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/testutil"
)

func setupSweepTest() (*SweepService, *testutil.MockTreasuryRepository, *testutil.MockChain) {
	repo := testutil.NewMockTreasuryRepository()
	chain := testutil.NewMockChain(0)
	for _, t := range guardTreasuries() {
		t := t
		repo.AddTreasuries(&t)
	}

	guard := NewStaleGuard(chain, 3, zap.NewNop())
	reconciler := NewReconcilerService(repo, nil, zap.NewNop())
	return NewSweepService(repo, guard, reconciler, zap.NewNop()), repo, chain
}

func TestSweepService_AllGoneDeletesNothing(t *testing.T) {
	service, repo, _ := setupSweepTest()

	result, err := service.Sweep(context.Background(), testutil.OwnerAddress, testutil.TestChainID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Decision.Gone != 5 || result.Decision.AbortReason != GuardAllGone {
		t.Errorf("expected 5 gone and guard abort, got %+v", result.Decision)
	}
	if result.Reconcile == nil || result.Reconcile.Deleted != 0 || result.Reconcile.Scanned != 0 {
		t.Errorf("expected empty submit, got %+v", result.Reconcile)
	}
	if repo.CallCount("DeleteOwned") != 0 {
		t.Error("expected no delete statement")
	}
}

func TestSweepService_DeletesGoneWhenSomeLive(t *testing.T) {
	service, repo, chain := setupSweepTest()
	chain.Code[common.HexToAddress(guardAddresses[0])] = []byte{0x60}
	chain.Code[common.HexToAddress(guardAddresses[1])] = []byte{0x60}

	result, err := service.Sweep(context.Background(), testutil.OwnerAddress, testutil.TestChainID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Reconcile.Deleted != 3 {
		t.Errorf("expected 3 deleted, got %+v", result.Reconcile)
	}
	if got, _ := repo.GetByID(context.Background(), guardIDs[0]); got == nil {
		t.Error("expected live treasury kept")
	}
}

func TestSweepService_DryRun(t *testing.T) {
	service, repo, chain := setupSweepTest()
	chain.Code[common.HexToAddress(guardAddresses[0])] = []byte{0x60}

	result, err := service.Sweep(context.Background(), testutil.OwnerAddress, testutil.TestChainID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Decision.Candidates) != 4 || result.Reconcile != nil {
		t.Errorf("expected 4 candidates and no reconcile, got %+v", result)
	}
	if repo.CallCount("DeleteOwned") != 0 {
		t.Error("expected dry run not to delete")
	}
}

func TestSweepService_OtherChainUntouched(t *testing.T) {
	service, _, chain := setupSweepTest()

	result, err := service.Sweep(context.Background(), testutil.OwnerAddress, 1, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Checked) != 0 || chain.CodeCalls != 0 {
		t.Errorf("expected no checks on a chain without treasuries, got %d", len(result.Checked))
	}
}
