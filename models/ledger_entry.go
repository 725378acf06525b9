package models

import "time"

// LedgerKind is the kind of a box ledger entry.
type LedgerKind string

const (
	LedgerKindFundIn       LedgerKind = "fund_in"
	LedgerKindClaimReserve LedgerKind = "claim_reserve"
	LedgerKindAdjust       LedgerKind = "adjust"
	LedgerKindWithdrawn    LedgerKind = "withdrawn"
)

// BoxLedgerEntry is one append-only fact about a box's balance.
// Entries are never updated or deleted; administrative corrections are
// expressed as additional adjust entries.
//
// available(box) = Σ fund_in + Σ adjust − Σ claim_reserve.
// withdrawn entries reduce on-chain balance and the reserved total
// symmetrically and do not affect available.
type BoxLedgerEntry struct {
	ID    string     `gorm:"primaryKey;type:uuid" json:"id"`
	BoxID string     `gorm:"index;not null" json:"box_id"`
	Kind  LedgerKind `gorm:"type:varchar(16);not null;index" json:"kind"`

	// Amount is positive for fund_in, claim_reserve and withdrawn; adjust
	// entries may carry either sign.
	Amount float64 `gorm:"not null" json:"amount"`

	// DigID tags claim_reserve entries with the caller's idempotency token.
	// Unique so a retried reservation can never append a second entry.
	DigID  *string `gorm:"uniqueIndex" json:"dig_id,omitempty"`
	UserID string  `gorm:"index" json:"user_id,omitempty"`

	// Best-effort USD price captured at reservation time. Display only.
	PriceUSD *float64 `json:"price_usd,omitempty"`

	Note      string    `gorm:"type:text" json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
