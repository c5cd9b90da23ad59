package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/domain/apperr"
	"github.com/bimakw/treasury-sync/internal/domain/entities"
	"github.com/bimakw/treasury-sync/internal/testutil"
)

func setupLedgerServiceTest() (*LedgerService, *testutil.MockLedgerRepository, *testutil.MockTreasuryRepository, *testutil.MockPageCache) {
	ledgerRepo := testutil.NewMockLedgerRepository()
	treasuryRepo := testutil.NewMockTreasuryRepository()
	treasuryRepo.AddTreasuries(testutil.CreateTestTreasury())
	pageCache := testutil.NewMockPageCache()

	service := NewLedgerService(ledgerRepo, treasuryRepo, pageCache, zap.NewNop())
	return service, ledgerRepo, treasuryRepo, pageCache
}

func validRecordRequest() RecordRequest {
	return RecordRequest{
		TxHash:         "0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000001",
		LogIndex:       0,
		EventType:      "fund",
		FromAddress:    "0x1111111111111111111111111111111111111111",
		ToAddress:      "0x5E5E5E5E5E5E5E5E5E5E5E5E5E5E5E5E5E5E5E5E",
		Amount:         "1.5e3",
		BlockNumber:    200,
		BlockTimestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestLedgerService_GetTransactions_Pagination(t *testing.T) {
	service, ledgerRepo, _, _ := setupLedgerServiceTest()
	ledgerRepo.AddEntries(testutil.CreateMultipleEntries(10)...)

	filter := entities.DefaultLedgerFilter(testutil.TreasuryID)
	filter.Limit = 3

	page, err := service.GetTransactions(context.Background(), filter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if page.Total != 10 || len(page.Transactions) != 3 || !page.HasMore {
		t.Errorf("unexpected page %+v", page)
	}
	if page.Transactions[0].BlockNumber != 109 {
		t.Errorf("expected newest first, got block %d", page.Transactions[0].BlockNumber)
	}
	if page.Transactions[0].BlockTimestamp != "2024-01-15T10:51:48Z" {
		t.Errorf("unexpected timestamp format %s", page.Transactions[0].BlockTimestamp)
	}
}

func TestLedgerService_GetTransactions_EventTypeFilter(t *testing.T) {
	service, ledgerRepo, _, _ := setupLedgerServiceTest()
	period := int64(1)
	ledgerRepo.AddEntries(
		testutil.CreateTestLedgerEntry(testutil.EntryWithBlock(1, 0)),
		testutil.CreateTestLedgerEntry(testutil.EntryWithBlock(2, 0), testutil.EntryWithKind(entities.EventSpend, &period)),
	)

	kind := entities.EventSpend
	filter := entities.DefaultLedgerFilter(testutil.TreasuryID)
	filter.EventType = &kind

	page, err := service.GetTransactions(context.Background(), filter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 || page.Transactions[0].EventType != "spend" {
		t.Errorf("expected only the spend, got %+v", page.Transactions)
	}
}

func TestLedgerService_GetTransactions_Cached(t *testing.T) {
	service, ledgerRepo, _, pageCache := setupLedgerServiceTest()
	ledgerRepo.AddEntries(testutil.CreateMultipleEntries(2)...)
	ctx := context.Background()
	filter := entities.DefaultLedgerFilter(testutil.TreasuryID)

	if _, err := service.GetTransactions(ctx, filter); err != nil {
		t.Fatal(err)
	}
	if _, err := service.GetTransactions(ctx, filter); err != nil {
		t.Fatal(err)
	}

	if pageCache.Hits != 1 {
		t.Errorf("expected second read from cache, got %d hits", pageCache.Hits)
	}
	if ledgerRepo.CallCount("GetByFilter") != 1 {
		t.Errorf("expected one store query, got %d", ledgerRepo.CallCount("GetByFilter"))
	}
}

func TestLedgerService_GetTransactions_UnknownTreasury(t *testing.T) {
	service, _, _, _ := setupLedgerServiceTest()

	_, err := service.GetTransactions(context.Background(), entities.DefaultLedgerFilter(testutil.OtherTreasuryID))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = service.GetTransactions(context.Background(), entities.DefaultLedgerFilter("nope"))
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLedgerService_GetTransactions_RepoError(t *testing.T) {
	service, ledgerRepo, _, _ := setupLedgerServiceTest()
	ledgerRepo.GetByFilterFunc = func(ctx context.Context, filter entities.LedgerFilter) ([]entities.LedgerEntry, error) {
		return nil, errors.New("database error")
	}

	if _, err := service.GetTransactions(context.Background(), entities.DefaultLedgerFilter(testutil.TreasuryID)); err == nil {
		t.Fatal("expected error")
	}
}

func TestLedgerService_Record(t *testing.T) {
	service, ledgerRepo, _, pageCache := setupLedgerServiceTest()
	ctx := context.Background()

	result, err := service.Record(ctx, testutil.TreasuryID, validRecordRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Inserted {
		t.Error("expected insert")
	}
	if result.Entry.EventType != "deposit" {
		t.Errorf("expected fund to map to deposit, got %s", result.Entry.EventType)
	}
	if result.Entry.Amount != "1500" {
		t.Errorf("expected canonical amount 1500, got %s", result.Entry.Amount)
	}
	if result.Entry.ToAddress != testutil.TreasuryAddress {
		t.Errorf("expected lower-cased address, got %s", result.Entry.ToAddress)
	}
	if len(pageCache.DeletedPatterns) != 1 {
		t.Error("expected cache invalidation on insert")
	}

	// The ingestor later sees the same log
	again, err := service.Record(ctx, testutil.TreasuryID, validRecordRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Inserted {
		t.Error("expected duplicate write to be a no-op")
	}
	if len(ledgerRepo.Entries()) != 1 {
		t.Errorf("expected 1 row, got %d", len(ledgerRepo.Entries()))
	}
}

func TestLedgerService_Record_Validation(t *testing.T) {
	period := int64(3)
	tests := []struct {
		name   string
		mutate func(*RecordRequest)
	}{
		{"bad hash", func(r *RecordRequest) { r.TxHash = "0x1234" }},
		{"unknown kind", func(r *RecordRequest) { r.EventType = "transfer" }},
		{"bad from", func(r *RecordRequest) { r.FromAddress = "alice" }},
		{"fractional amount", func(r *RecordRequest) { r.Amount = "1.5" }},
		{"negative amount", func(r *RecordRequest) { r.Amount = "-1" }},
		{"not a number", func(r *RecordRequest) { r.Amount = "ten" }},
		{"period on deposit", func(r *RecordRequest) { r.PeriodIndex = &period }},
		{"missing timestamp", func(r *RecordRequest) { r.BlockTimestamp = time.Time{} }},
		{"negative log index", func(r *RecordRequest) { r.LogIndex = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, ledgerRepo, _, _ := setupLedgerServiceTest()
			req := validRecordRequest()
			tt.mutate(&req)

			_, err := service.Record(context.Background(), testutil.TreasuryID, req)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ledgerRepo.CallCount("InsertIfAbsent") != 0 {
				t.Error("expected no write")
			}
		})
	}
}

func TestLedgerService_Record_UnknownTreasury(t *testing.T) {
	service, _, _, _ := setupLedgerServiceTest()

	_, err := service.Record(context.Background(), testutil.OtherTreasuryID, validRecordRequest())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCanonicalAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"100", "100", false},
		{" 0042 ", "42", false},
		{"1e18", "1000000000000000000", false},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639935", "115792089237316195423570985008687907853269984665640564039457584007913129639935", false},
		{"1000000000000000000000000000000000000000000000000000000000000000000000000000000", "", true},
		{"0.1", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := CanonicalAmount(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CanonicalAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("CanonicalAmount(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLedgerService_CanonicalTreasuryID(t *testing.T) {
	service, ledgerRepo, _, pageCache := setupLedgerServiceTest()
	ledgerRepo.AddEntries(testutil.CreateMultipleEntries(2)...)
	upper := strings.ToUpper(testutil.TreasuryID)

	page, err := service.GetTransactions(context.Background(), entities.DefaultLedgerFilter(upper))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.TreasuryID != testutil.TreasuryID || page.Total != 2 {
		t.Errorf("expected canonical id page, got %+v", page)
	}

	result, err := service.Record(context.Background(), upper, validRecordRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Inserted || pageCache.Len() != 0 {
		t.Error("expected write under an upper-case id to invalidate the cached page")
	}
}
