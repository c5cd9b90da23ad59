package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const ledgerPrefix = "ledger:"

// LedgerPageKey returns the key of one cached ledger page of a treasury
func LedgerPageKey(treasuryID, eventType string, limit, offset int) string {
	raw := fmt.Sprintf("type:%s|l:%d:o:%d", eventType, limit, offset)
	hash := sha256.Sum256([]byte(raw))
	return ledgerPrefix + treasuryID + ":" + hex.EncodeToString(hash[:8])
}

// LedgerPattern matches every cached ledger page of a treasury
func LedgerPattern(treasuryID string) string {
	return ledgerPrefix + treasuryID + ":*"
}
