package entities

// SyncCursor is the resume point of a treasury, derived from its ledger
// rather than stored.
type SyncCursor struct {
	TreasuryID string
	// LastRecordedBlock is the highest block with a ledger entry, nil when none
	LastRecordedBlock *int64
}

// Next returns the first block the next scan covers. An explicit override
// wins; otherwise one past the last recorded block, or genesis.
func (c SyncCursor) Next(override *int64) int64 {
	if override != nil {
		return *override
	}
	if c.LastRecordedBlock != nil {
		return *c.LastRecordedBlock + 1
	}
	return 0
}
