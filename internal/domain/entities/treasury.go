package entities

import (
	"regexp"
	"strings"
	"time"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValidAddress reports whether s is a 0x-prefixed 40-hex-digit address
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// NormalizeAddress returns the lower-case canonical form of an address
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Treasury is a registered spending-policy contract mirrored from chain
type Treasury struct {
	ID                string     `db:"id"`
	ChainID           int64      `db:"chain_id"`
	Address           string     `db:"address"`
	OwnerAddress      string     `db:"owner_address"`
	TokenAddress      string     `db:"token_address"`
	TokenSymbol       *string    `db:"token_symbol"`
	TokenDecimals     *int       `db:"token_decimals"`
	MaxSpendPerPeriod *string    `db:"max_spend_per_period"`
	PeriodLength      *int64     `db:"period_length"`
	Expiry            *time.Time `db:"expiry"`
	MigrationTarget   *string    `db:"migration_target"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// TreasuryFilter narrows treasury listings
type TreasuryFilter struct {
	OwnerAddress *string
	ChainID      *int64
}
