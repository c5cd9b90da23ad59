package entities

import (
	"time"
)

// EventKind is the closed set of ledger event types
type EventKind string

const (
	EventDeposit   EventKind = "deposit"
	EventSpend     EventKind = "spend"
	EventMigration EventKind = "migration"
	EventWithdraw  EventKind = "withdraw"
)

// ParseEventKind maps a stored or submitted label onto the closed set.
// "fund" is the dashboard's name for a deposit.
func ParseEventKind(s string) (EventKind, bool) {
	switch s {
	case "deposit", "fund":
		return EventDeposit, true
	case "spend":
		return EventSpend, true
	case "migration":
		return EventMigration, true
	case "withdraw":
		return EventWithdraw, true
	}
	return "", false
}

// HasPeriodIndex reports whether entries of this kind carry a period index
func (k EventKind) HasPeriodIndex() bool {
	return k == EventSpend || k == EventMigration
}

// LedgerEntry is one decoded on-chain event attributed to a treasury.
// (TreasuryID, TxHash, EventType, LogIndex) is unique.
type LedgerEntry struct {
	ID             int64     `db:"id"`
	TreasuryID     string    `db:"treasury_id"`
	TxHash         string    `db:"tx_hash"`
	LogIndex       int       `db:"log_index"`
	EventType      EventKind `db:"event_type"`
	FromAddress    string    `db:"from_address"`
	ToAddress      string    `db:"to_address"`
	Amount         string    `db:"amount"`
	PeriodIndex    *int64    `db:"period_index"`
	BlockNumber    int64     `db:"block_number"`
	BlockTimestamp time.Time `db:"block_timestamp"`
	CreatedAt      time.Time `db:"created_at"`
}

// LedgerKey identifies a ledger entry independently of its row id
type LedgerKey struct {
	TreasuryID string
	TxHash     string
	EventType  EventKind
	LogIndex   int
}

// Key returns the dedup key of the entry
func (e *LedgerEntry) Key() LedgerKey {
	return LedgerKey{
		TreasuryID: e.TreasuryID,
		TxHash:     e.TxHash,
		EventType:  e.EventType,
		LogIndex:   e.LogIndex,
	}
}

// LedgerFilter contains filters for querying ledger entries
type LedgerFilter struct {
	TreasuryID string
	EventType  *EventKind
	Limit      int
	Offset     int
}

// DefaultLedgerFilter returns a filter with sensible defaults
func DefaultLedgerFilter(treasuryID string) LedgerFilter {
	return LedgerFilter{
		TreasuryID: treasuryID,
		Limit:      100,
		Offset:     0,
	}
}
