package testutil

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bimakw/treasury-sync/internal/domain/entities"
	chain "github.com/bimakw/treasury-sync/internal/infrastructure/ethereum"
)

// Common test addresses
const (
	TreasuryAddress = "0x5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e"
	TokenAddress    = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	OwnerAddress    = "0x0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a"
	AliceAddress    = "0x1111111111111111111111111111111111111111"
	BobAddress      = "0x2222222222222222222222222222222222222222"
	CharlieAddr     = "0x3333333333333333333333333333333333333333"
)

// Common test ids
const (
	TreasuryID      = "3f1c2b9a-8d4e-4f6a-9b2c-1d2e3f4a5b6c"
	OtherTreasuryID = "9b2c1d2e-3f4a-4b6c-8d4e-3f1c2b9a4f6a"
	TestChainID     = int64(8453)
)

// GenesisTime is the timestamp of block 0 on the mock chain
var GenesisTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// BlockTime returns the mock chain's timestamp for a block, 12s per block
func BlockTime(block uint64) time.Time {
	return GenesisTime.Add(time.Duration(block) * 12 * time.Second)
}

// TxHashFor returns the tx hash shared by every mock log in a block
func TxHashFor(block uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(0xbeef0000 + block))
}

// CreateTestTreasury creates a test treasury with default values
func CreateTestTreasury(opts ...TreasuryOption) *entities.Treasury {
	symbol := "USDC"
	decimals := 6
	t := &entities.Treasury{
		ID:            TreasuryID,
		ChainID:       TestChainID,
		Address:       TreasuryAddress,
		OwnerAddress:  OwnerAddress,
		TokenAddress:  TokenAddress,
		TokenSymbol:   &symbol,
		TokenDecimals: &decimals,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

type TreasuryOption func(*entities.Treasury)

func TreasuryWithID(id string) TreasuryOption {
	return func(t *entities.Treasury) {
		t.ID = id
	}
}

func TreasuryWithAddress(addr string) TreasuryOption {
	return func(t *entities.Treasury) {
		t.Address = addr
	}
}

func TreasuryWithOwner(addr string) TreasuryOption {
	return func(t *entities.Treasury) {
		t.OwnerAddress = addr
	}
}

func TreasuryWithChainID(chainID int64) TreasuryOption {
	return func(t *entities.Treasury) {
		t.ChainID = chainID
	}
}

func TreasuryWithToken(addr string) TreasuryOption {
	return func(t *entities.Treasury) {
		t.TokenAddress = addr
	}
}

// CreateTestLedgerEntry creates a test ledger entry with default values
func CreateTestLedgerEntry(opts ...LedgerEntryOption) entities.LedgerEntry {
	e := entities.LedgerEntry{
		ID:             1,
		TreasuryID:     TreasuryID,
		TxHash:         TxHashFor(100).Hex(),
		LogIndex:       0,
		EventType:      entities.EventDeposit,
		FromAddress:    AliceAddress,
		ToAddress:      TreasuryAddress,
		Amount:         "1000000",
		BlockNumber:    100,
		BlockTimestamp: BlockTime(100),
		CreatedAt:      time.Now(),
	}

	for _, opt := range opts {
		opt(&e)
	}

	return e
}

type LedgerEntryOption func(*entities.LedgerEntry)

func EntryWithID(id int64) LedgerEntryOption {
	return func(e *entities.LedgerEntry) {
		e.ID = id
	}
}

func EntryWithTreasuryID(id string) LedgerEntryOption {
	return func(e *entities.LedgerEntry) {
		e.TreasuryID = id
	}
}

func EntryWithBlock(block int64, logIndex int) LedgerEntryOption {
	return func(e *entities.LedgerEntry) {
		e.BlockNumber = block
		e.LogIndex = logIndex
		e.TxHash = TxHashFor(uint64(block)).Hex()
		e.BlockTimestamp = BlockTime(uint64(block))
	}
}

func EntryWithKind(kind entities.EventKind, period *int64) LedgerEntryOption {
	return func(e *entities.LedgerEntry) {
		e.EventType = kind
		e.PeriodIndex = period
	}
}

func EntryWithAmount(amount string) LedgerEntryOption {
	return func(e *entities.LedgerEntry) {
		e.Amount = amount
	}
}

// CreateMultipleEntries creates count deposit entries in consecutive blocks
func CreateMultipleEntries(count int) []entities.LedgerEntry {
	entries := make([]entities.LedgerEntry, count)
	for i := 0; i < count; i++ {
		entries[i] = CreateTestLedgerEntry(
			EntryWithID(int64(i+1)),
			EntryWithBlock(int64(100+i), 0),
		)
	}
	return entries
}

func amountWord(amount int64) []byte {
	return common.LeftPadBytes(big.NewInt(amount).Bytes(), 32)
}

func policyLog(topic common.Hash, treasury, operator, to string, block uint64, index uint, words ...[]byte) types.Log {
	var data []byte
	for _, w := range words {
		data = append(data, w...)
	}
	return types.Log{
		Address: common.HexToAddress(treasury),
		Topics: []common.Hash{
			topic,
			chain.AddressTopic(common.HexToAddress(operator)),
			chain.AddressTopic(common.HexToAddress(to)),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      TxHashFor(block),
		Index:       index,
	}
}

// SpendLog builds a Spend log emitted by treasury
func SpendLog(treasury, operator, to string, amount, period int64, block uint64, index uint) types.Log {
	return policyLog(chain.DefaultTopics().Spend, treasury, operator, to, block, index,
		amountWord(amount), amountWord(period))
}

// MigrationLog builds a Migration log emitted by treasury
func MigrationLog(treasury, operator, to string, amount, period, remaining int64, block uint64, index uint) types.Log {
	return policyLog(chain.DefaultTopics().Migration, treasury, operator, to, block, index,
		amountWord(amount), amountWord(period), amountWord(remaining))
}

// DepositLog builds a token Transfer log crediting treasury
func DepositLog(token, from, treasury string, amount int64, block uint64, index uint) types.Log {
	return types.Log{
		Address: common.HexToAddress(token),
		Topics: []common.Hash{
			chain.DefaultTopics().Transfer,
			chain.AddressTopic(common.HexToAddress(from)),
			chain.AddressTopic(common.HexToAddress(treasury)),
		},
		Data:        amountWord(amount),
		BlockNumber: block,
		TxHash:      TxHashFor(block),
		Index:       index,
	}
}
