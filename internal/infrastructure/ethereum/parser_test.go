package ethereum

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bimakw/treasury-sync/internal/domain/apperr"
	"github.com/bimakw/treasury-sync/internal/domain/entities"
)

var (
	testTreasury  = common.HexToAddress("0x7777777777777777777777777777777777777777")
	testOperator  = common.HexToAddress("0x1234567890123456789012345678901234567890")
	testRecipient = common.HexToAddress("0xAbCdEfAbCdEfAbCdEfAbCdEfAbCdEfAbCdEfAbCd")
	testToken     = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	testTxHash    = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
)

func words(values ...*big.Int) []byte {
	var data []byte
	for _, v := range values {
		data = append(data, common.LeftPadBytes(v.Bytes(), 32)...)
	}
	return data
}

func spendLog(amount, period *big.Int) types.Log {
	return types.Log{
		Address: testTreasury,
		Topics: []common.Hash{
			DefaultTopics().Spend,
			AddressTopic(testOperator),
			AddressTopic(testRecipient),
		},
		Data:        words(amount, period),
		BlockNumber: 12345678,
		TxHash:      testTxHash,
		Index:       5,
	}
}

func TestDecode_Spend(t *testing.T) {
	decoder := NewDecoder(DefaultTopics())

	event, err := decoder.Decode(spendLog(big.NewInt(100), big.NewInt(2)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spend, ok := event.(SpendEvent)
	if !ok {
		t.Fatalf("expected SpendEvent, got %T", event)
	}
	if spend.Kind() != entities.EventSpend {
		t.Errorf("expected spend kind, got %s", spend.Kind())
	}

	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	entry := event.Entry("treasury-1", ts)

	if entry.EventType != entities.EventSpend {
		t.Errorf("EventType mismatch: got %s", entry.EventType)
	}
	if entry.FromAddress != "0x1234567890123456789012345678901234567890" {
		t.Errorf("FromAddress mismatch: got %s", entry.FromAddress)
	}
	if entry.ToAddress != "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd" {
		t.Errorf("ToAddress mismatch: expected lowercase, got %s", entry.ToAddress)
	}
	if entry.Amount != "100" {
		t.Errorf("Amount mismatch: expected 100, got %s", entry.Amount)
	}
	if entry.PeriodIndex == nil || *entry.PeriodIndex != 2 {
		t.Errorf("PeriodIndex mismatch: expected 2, got %v", entry.PeriodIndex)
	}
	if entry.LogIndex != 5 {
		t.Errorf("LogIndex mismatch: expected 5, got %d", entry.LogIndex)
	}
	if entry.BlockNumber != 12345678 {
		t.Errorf("BlockNumber mismatch: got %d", entry.BlockNumber)
	}
	if entry.TxHash != strings.ToLower(testTxHash.Hex()) {
		t.Errorf("TxHash mismatch: got %s", entry.TxHash)
	}
	if !entry.BlockTimestamp.Equal(ts) {
		t.Errorf("BlockTimestamp mismatch: got %v", entry.BlockTimestamp)
	}
	if entry.TreasuryID != "treasury-1" {
		t.Errorf("TreasuryID mismatch: got %s", entry.TreasuryID)
	}
}

func TestDecode_SpendLargeAmount(t *testing.T) {
	// 2^256 - 1 survives without precision loss
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	event, err := NewDecoder(DefaultTopics()).Decode(spendLog(maxUint256, big.NewInt(0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry := event.Entry("t", time.Now())
	if entry.Amount != maxUint256.String() {
		t.Errorf("expected %s, got %s", maxUint256.String(), entry.Amount)
	}
	if entry.PeriodIndex == nil || *entry.PeriodIndex != 0 {
		t.Errorf("expected period 0, got %v", entry.PeriodIndex)
	}
}

func TestDecode_Migration(t *testing.T) {
	log := types.Log{
		Address: testTreasury,
		Topics: []common.Hash{
			DefaultTopics().Migration,
			AddressTopic(testTreasury),
			AddressTopic(testRecipient),
		},
		Data:        words(big.NewInt(5000), big.NewInt(7), big.NewInt(123)),
		BlockNumber: 10,
		TxHash:      testTxHash,
		Index:       1,
	}

	event, err := NewDecoder(DefaultTopics()).Decode(log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	migration, ok := event.(MigrationEvent)
	if !ok {
		t.Fatalf("expected MigrationEvent, got %T", event)
	}
	if migration.RemainingBalance.Int64() != 123 {
		t.Errorf("expected remaining balance 123, got %s", migration.RemainingBalance)
	}

	entry := event.Entry("t", time.Now())
	if entry.EventType != entities.EventMigration {
		t.Errorf("expected migration, got %s", entry.EventType)
	}
	if entry.Amount != "5000" {
		t.Errorf("expected amount 5000, got %s", entry.Amount)
	}
	if entry.PeriodIndex == nil || *entry.PeriodIndex != 7 {
		t.Errorf("expected period 7, got %v", entry.PeriodIndex)
	}
	if entry.FromAddress != strings.ToLower(testTreasury.Hex()) {
		t.Errorf("unexpected from %s", entry.FromAddress)
	}
}

func TestDecode_Deposit(t *testing.T) {
	log := types.Log{
		Address: testToken,
		Topics: []common.Hash{
			DefaultTopics().Transfer,
			AddressTopic(testOperator),
			AddressTopic(testTreasury),
		},
		Data:        words(big.NewInt(1000000)),
		BlockNumber: 11,
		TxHash:      testTxHash,
		Index:       0,
	}

	event, err := NewDecoder(DefaultTopics()).Decode(log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := event.(DepositEvent); !ok {
		t.Fatalf("expected DepositEvent, got %T", event)
	}

	entry := event.Entry("t", time.Now())
	if entry.EventType != entities.EventDeposit {
		t.Errorf("expected deposit, got %s", entry.EventType)
	}
	if entry.PeriodIndex != nil {
		t.Errorf("deposit must not carry a period index, got %d", *entry.PeriodIndex)
	}
	if entry.Amount != "1000000" {
		t.Errorf("expected 1000000, got %s", entry.Amount)
	}
	if entry.ToAddress != strings.ToLower(testTreasury.Hex()) {
		t.Errorf("unexpected to %s", entry.ToAddress)
	}
}

func TestDecode_ShapeErrors(t *testing.T) {
	topics := DefaultTopics()

	tests := []struct {
		name string
		log  types.Log
	}{
		{"no topics", types.Log{}},
		{"unknown topic", types.Log{Topics: []common.Hash{common.HexToHash("0x01"), {}, {}}, Data: words(big.NewInt(1))}},
		{"spend missing topic", types.Log{Topics: []common.Hash{topics.Spend, AddressTopic(testOperator)}, Data: words(big.NewInt(1), big.NewInt(1))}},
		{"spend short data", types.Log{Topics: []common.Hash{topics.Spend, {}, {}}, Data: words(big.NewInt(1))}},
		{"spend long data", types.Log{Topics: []common.Hash{topics.Spend, {}, {}}, Data: words(big.NewInt(1), big.NewInt(1), big.NewInt(1))}},
		{"migration two words", types.Log{Topics: []common.Hash{topics.Migration, {}, {}}, Data: words(big.NewInt(1), big.NewInt(1))}},
		{"deposit extra topic", types.Log{Topics: []common.Hash{topics.Transfer, {}, {}, {}}, Data: words(big.NewInt(1))}},
		{"deposit empty data", types.Log{Topics: []common.Hash{topics.Transfer, {}, {}}}},
		{"period overflow", types.Log{Topics: []common.Hash{topics.Spend, {}, {}}, Data: words(big.NewInt(1), new(big.Int).Lsh(big.NewInt(1), 70))}},
	}

	decoder := NewDecoder(topics)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := decoder.Decode(tt.log)
			if err == nil {
				t.Fatalf("expected error, got event %#v", event)
			}
			if !apperr.Is(err, apperr.KindDecode) {
				t.Errorf("expected decode error, got %v", err)
			}
		})
	}
}

func TestSortLogs(t *testing.T) {
	logs := []types.Log{
		{BlockNumber: 5, Index: 2},
		{BlockNumber: 3, Index: 9},
		{BlockNumber: 5, Index: 0},
		{BlockNumber: 3, Index: 1},
	}

	SortLogs(logs)

	want := [][2]uint64{{3, 1}, {3, 9}, {5, 0}, {5, 2}}
	for i, w := range want {
		if logs[i].BlockNumber != w[0] || uint64(logs[i].Index) != w[1] {
			t.Errorf("position %d: expected (%d,%d), got (%d,%d)", i, w[0], w[1], logs[i].BlockNumber, logs[i].Index)
		}
	}
}

func TestAddressTopic(t *testing.T) {
	topic := AddressTopic(testRecipient)
	if common.BytesToAddress(topic.Bytes()) != testRecipient {
		t.Error("expected low 20 bytes to round-trip the address")
	}
	for _, b := range topic.Bytes()[:12] {
		if b != 0 {
			t.Fatal("expected left zero padding")
		}
	}
}
