package models

import "time"

// ClaimStatus — a claim is CLAIMED until a withdrawal consumes it.
type ClaimStatus string

const (
	ClaimStatusClaimed   ClaimStatus = "claimed"
	ClaimStatusWithdrawn ClaimStatus = "withdrawn"
)

// Claim is one user's still-claimable reward unit tied to the box it came
// from. A withdrawn claim is immutable. The only permitted amount mutation
// is the split during partial withdrawal: the original keeps the remainder
// (still CLAIMED) and a new WITHDRAWN claim holds the consumed portion.
//
// The composite index backs the oldest-first scan the withdrawal consumer
// runs per asset group.
type Claim struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"index:idx_claim_fifo,priority:1;not null" json:"user_id"`
	BoxID  string `gorm:"index;not null" json:"box_id"`

	ChainID      string `gorm:"index:idx_claim_fifo,priority:2;type:varchar(64);not null" json:"chain_id"`
	TokenSymbol  string `gorm:"index:idx_claim_fifo,priority:3;type:varchar(64);not null" json:"token_symbol"`
	TokenAddress string `gorm:"index:idx_claim_fifo,priority:4;type:varchar(128);not null" json:"token_address"`

	Amount float64     `gorm:"not null" json:"amount"`
	Status ClaimStatus `gorm:"index:idx_claim_fifo,priority:5;type:varchar(16);not null;default:'claimed'" json:"status"`

	// DigID links the claim back to the reservation that produced it.
	DigID string `gorm:"index" json:"dig_id,omitempty"`

	// SplitFromID is set on the WITHDRAWN half of a partial-withdrawal split.
	SplitFromID *string `json:"split_from_id,omitempty"`

	CreatedAt   time.Time  `gorm:"index:idx_claim_fifo,priority:6" json:"created_at"`
	WithdrawnAt *time.Time `json:"withdrawn_at,omitempty"`
}

// AssetGroup is the derived (chain, symbol, address) aggregation over a
// user's CLAIMED claims. Computed on demand, never stored.
type AssetGroup struct {
	ChainID      string  `json:"chain_id"`
	TokenSymbol  string  `json:"token_symbol"`
	TokenAddress string  `json:"token_address"`
	Amount       float64 `json:"amount"`
	ClaimsCount  int64   `json:"claims_count"`
	BoxesCount   int64   `json:"boxes_count"`
}
