package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/domain/apperr"
	"github.com/bimakw/treasury-sync/internal/testutil"
)

func setupReconcilerTest() (*ReconcilerService, *testutil.MockTreasuryRepository, *testutil.MockLedgerRepository, *testutil.MockPageCache) {
	ledger := testutil.NewMockLedgerRepository()
	repo := testutil.NewMockTreasuryRepository()
	repo.Ledger = ledger
	pageCache := testutil.NewMockPageCache()

	return NewReconcilerService(repo, pageCache, zap.NewNop()), repo, ledger, pageCache
}

func TestReconcilerService_DeletesOwnedCandidates(t *testing.T) {
	service, repo, ledger, pageCache := setupReconcilerTest()
	repo.AddTreasuries(testutil.CreateTestTreasury())
	ledger.AddEntries(testutil.CreateMultipleEntries(3)...)

	result, err := service.Reconcile(context.Background(), ReconcileRequest{
		OwnerAddress:     "0x" + strings.ToUpper(testutil.OwnerAddress[2:]),
		ChainID:          testutil.TestChainID,
		StaleTreasuryIDs: []string{testutil.TreasuryID},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Deleted != 1 || result.Scanned != 1 {
		t.Errorf("expected 1 of 1 deleted, got %+v", result)
	}
	if result.OwnerAddress != testutil.OwnerAddress {
		t.Errorf("expected lower-cased owner, got %s", result.OwnerAddress)
	}
	if len(ledger.Entries()) != 0 {
		t.Error("expected ledger rows to cascade")
	}
	if len(pageCache.DeletedPatterns) != 1 {
		t.Error("expected cache invalidation for the deleted treasury")
	}
}

func TestReconcilerService_ScopesToOwnerAndChain(t *testing.T) {
	service, repo, _, _ := setupReconcilerTest()
	otherOwner := testutil.CreateTestTreasury(testutil.TreasuryWithID(testutil.OtherTreasuryID), testutil.TreasuryWithOwner(testutil.AliceAddress))
	repo.AddTreasuries(testutil.CreateTestTreasury(), otherOwner)

	// Right owner, wrong chain
	result, err := service.Reconcile(context.Background(), ReconcileRequest{
		OwnerAddress:     testutil.OwnerAddress,
		ChainID:          1,
		StaleTreasuryIDs: []string{testutil.TreasuryID, testutil.OtherTreasuryID},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Deleted != 0 {
		t.Errorf("expected nothing deleted on another chain, got %d", result.Deleted)
	}

	// Right chain: only the owner's own treasury goes
	result, err = service.Reconcile(context.Background(), ReconcileRequest{
		OwnerAddress:     testutil.OwnerAddress,
		ChainID:          testutil.TestChainID,
		StaleTreasuryIDs: []string{testutil.TreasuryID, testutil.OtherTreasuryID},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Scanned != 2 || result.Deleted != 1 {
		t.Errorf("expected 1 of 2 deleted, got %+v", result)
	}
	if got, _ := repo.GetByID(context.Background(), testutil.OtherTreasuryID); got == nil {
		t.Error("expected another owner's treasury to survive")
	}
}

func TestReconcilerService_EmptyAndNonUUIDCandidates(t *testing.T) {
	service, repo, _, _ := setupReconcilerTest()
	repo.AddTreasuries(testutil.CreateTestTreasury())

	result, err := service.Reconcile(context.Background(), ReconcileRequest{
		OwnerAddress:     testutil.OwnerAddress,
		ChainID:          testutil.TestChainID,
		StaleTreasuryIDs: []string{"42", "not-a-uuid"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Scanned != 2 || result.Deleted != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if repo.CallCount("DeleteOwned") != 0 {
		t.Error("expected no delete statement without UUID candidates")
	}

	result, err = service.Reconcile(context.Background(), ReconcileRequest{
		OwnerAddress: testutil.OwnerAddress,
		ChainID:      testutil.TestChainID,
	})
	if err != nil || result.Scanned != 0 || result.Deleted != 0 {
		t.Errorf("expected empty submit to be a no-op, got %+v %v", result, err)
	}
}

func TestReconcilerService_Validation(t *testing.T) {
	service, repo, _, _ := setupReconcilerTest()

	tests := []ReconcileRequest{
		{OwnerAddress: "owner", ChainID: 1},
		{OwnerAddress: strings.TrimPrefix(testutil.OwnerAddress, "0x"), ChainID: 1},
		{OwnerAddress: testutil.OwnerAddress, ChainID: 0},
		{OwnerAddress: testutil.OwnerAddress, ChainID: -3},
	}
	for _, req := range tests {
		if _, err := service.Reconcile(context.Background(), req); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("expected validation error for %+v, got %v", req, err)
		}
	}
	if len(repo.Calls) != 0 {
		t.Error("expected no store access on invalid input")
	}
}

func TestReconcilerService_StoreError(t *testing.T) {
	service, repo, _, _ := setupReconcilerTest()
	repo.DeleteOwnedFunc = func(ctx context.Context, owner string, chainID int64, ids []string) ([]string, error) {
		return nil, errors.New("database error")
	}

	_, err := service.Reconcile(context.Background(), ReconcileRequest{
		OwnerAddress:     testutil.OwnerAddress,
		ChainID:          testutil.TestChainID,
		StaleTreasuryIDs: []string{testutil.TreasuryID},
	})
	if err == nil || apperr.KindOf(err) != "" {
		t.Fatalf("expected untyped store error, got %v", err)
	}
}

func TestValidIDs(t *testing.T) {
	upper := strings.ToUpper(testutil.TreasuryID)
	ids := validIDs([]string{upper, testutil.TreasuryID, "7", ""})

	if len(ids) != 1 || ids[0] != testutil.TreasuryID {
		t.Errorf("expected one canonical id, got %v", ids)
	}
}
