package ethereum

import (
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bimakw/treasury-sync/internal/domain/apperr"
	"github.com/bimakw/treasury-sync/internal/domain/entities"
)

const wordSize = 32

// LogRef locates a decoded event on chain
type LogRef struct {
	TxHash      string
	LogIndex    int
	BlockNumber uint64
}

// Event is a decoded treasury event. The set of implementations is closed:
// SpendEvent, MigrationEvent and DepositEvent.
type Event interface {
	Kind() entities.EventKind
	Ref() LogRef
	// Entry converts the event into a ledger row for the treasury
	Entry(treasuryID string, blockTimestamp time.Time) entities.LedgerEntry
	sealed()
}

// SpendEvent is Spend(address indexed operator, address indexed to, uint256 amount, uint256 periodIndex)
type SpendEvent struct {
	LogRef
	Operator    common.Address
	To          common.Address
	Amount      *big.Int
	PeriodIndex int64
}

// MigrationEvent is Migration(address indexed from, address indexed to, uint256 amount, uint256 periodIndex, uint256 remaining)
type MigrationEvent struct {
	LogRef
	From             common.Address
	To               common.Address
	Amount           *big.Int
	PeriodIndex      int64
	RemainingBalance *big.Int
}

// DepositEvent is an ERC-20 Transfer into the treasury
type DepositEvent struct {
	LogRef
	From   common.Address
	To     common.Address
	Amount *big.Int
}

func (SpendEvent) sealed()     {}
func (MigrationEvent) sealed() {}
func (DepositEvent) sealed()   {}

func (e SpendEvent) Kind() entities.EventKind     { return entities.EventSpend }
func (e MigrationEvent) Kind() entities.EventKind { return entities.EventMigration }
func (e DepositEvent) Kind() entities.EventKind   { return entities.EventDeposit }

func (e SpendEvent) Ref() LogRef     { return e.LogRef }
func (e MigrationEvent) Ref() LogRef { return e.LogRef }
func (e DepositEvent) Ref() LogRef   { return e.LogRef }

func (e SpendEvent) Entry(treasuryID string, ts time.Time) entities.LedgerEntry {
	period := e.PeriodIndex
	return newEntry(treasuryID, e.LogRef, e.Kind(), e.Operator, e.To, e.Amount, &period, ts)
}

// Entry drops RemainingBalance; the ledger does not persist it
func (e MigrationEvent) Entry(treasuryID string, ts time.Time) entities.LedgerEntry {
	period := e.PeriodIndex
	return newEntry(treasuryID, e.LogRef, e.Kind(), e.From, e.To, e.Amount, &period, ts)
}

func (e DepositEvent) Entry(treasuryID string, ts time.Time) entities.LedgerEntry {
	return newEntry(treasuryID, e.LogRef, e.Kind(), e.From, e.To, e.Amount, nil, ts)
}

func newEntry(treasuryID string, ref LogRef, kind entities.EventKind, from, to common.Address, amount *big.Int, period *int64, ts time.Time) entities.LedgerEntry {
	return entities.LedgerEntry{
		TreasuryID:     treasuryID,
		TxHash:         ref.TxHash,
		LogIndex:       ref.LogIndex,
		EventType:      kind,
		FromAddress:    strings.ToLower(from.Hex()),
		ToAddress:      strings.ToLower(to.Hex()),
		Amount:         amount.String(),
		PeriodIndex:    period,
		BlockNumber:    int64(ref.BlockNumber),
		BlockTimestamp: ts,
	}
}

// Decoder classifies logs by topic0 against a fixed topic table
type Decoder struct {
	topics TopicTable
}

// NewDecoder creates a decoder for the given topic table
func NewDecoder(topics TopicTable) *Decoder {
	return &Decoder{topics: topics}
}

// Decode parses a raw log into its event variant. Shape mismatches return
// a decode error scoped to this log.
func (d *Decoder) Decode(log types.Log) (Event, error) {
	if len(log.Topics) == 0 {
		return nil, apperr.Decode("log %s:%d has no topics", log.TxHash.Hex(), log.Index)
	}

	switch log.Topics[0] {
	case d.topics.Spend:
		return decodeSpend(log)
	case d.topics.Migration:
		return decodeMigration(log)
	case d.topics.Transfer:
		return decodeDeposit(log)
	}

	return nil, apperr.Decode("log %s:%d has unknown topic %s", log.TxHash.Hex(), log.Index, log.Topics[0].Hex())
}

func decodeSpend(log types.Log) (Event, error) {
	if err := checkShape(log, "Spend", 2); err != nil {
		return nil, err
	}
	period, err := periodWord(log, 1)
	if err != nil {
		return nil, err
	}

	return SpendEvent{
		LogRef:      refOf(log),
		Operator:    common.BytesToAddress(log.Topics[1].Bytes()),
		To:          common.BytesToAddress(log.Topics[2].Bytes()),
		Amount:      word(log.Data, 0),
		PeriodIndex: period,
	}, nil
}

func decodeMigration(log types.Log) (Event, error) {
	if err := checkShape(log, "Migration", 3); err != nil {
		return nil, err
	}
	period, err := periodWord(log, 1)
	if err != nil {
		return nil, err
	}

	return MigrationEvent{
		LogRef:           refOf(log),
		From:             common.BytesToAddress(log.Topics[1].Bytes()),
		To:               common.BytesToAddress(log.Topics[2].Bytes()),
		Amount:           word(log.Data, 0),
		PeriodIndex:      period,
		RemainingBalance: word(log.Data, 2),
	}, nil
}

func decodeDeposit(log types.Log) (Event, error) {
	if err := checkShape(log, "Transfer", 1); err != nil {
		return nil, err
	}

	return DepositEvent{
		LogRef: refOf(log),
		From:   common.BytesToAddress(log.Topics[1].Bytes()),
		To:     common.BytesToAddress(log.Topics[2].Bytes()),
		Amount: word(log.Data, 0),
	}, nil
}

// checkShape requires topic0 plus two indexed addresses and exactly words
// 32-byte data words
func checkShape(log types.Log, name string, words int) error {
	if len(log.Topics) != 3 {
		return apperr.Decode("%s log %s:%d: invalid number of topics: expected 3, got %d",
			name, log.TxHash.Hex(), log.Index, len(log.Topics))
	}
	if len(log.Data) != words*wordSize {
		return apperr.Decode("%s log %s:%d: invalid data length: expected %d, got %d",
			name, log.TxHash.Hex(), log.Index, words*wordSize, len(log.Data))
	}
	return nil
}

// word returns the i-th big-endian unsigned 32-byte word of data
func word(data []byte, i int) *big.Int {
	return new(big.Int).SetBytes(data[i*wordSize : (i+1)*wordSize])
}

func periodWord(log types.Log, i int) (int64, error) {
	v := word(log.Data, i)
	if !v.IsInt64() {
		return 0, apperr.Decode("log %s:%d: period index %s overflows int64", log.TxHash.Hex(), log.Index, v.String())
	}
	return v.Int64(), nil
}

func refOf(log types.Log) LogRef {
	return LogRef{
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		LogIndex:    int(log.Index),
		BlockNumber: log.BlockNumber,
	}
}

// SortLogs orders logs by (block number, log index) in place
func SortLogs(logs []types.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}

// AddressTopic left-pads an address into an indexed topic value
func AddressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
