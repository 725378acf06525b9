package models

import "time"

// Withdrawal is one settled withdrawal request over a single asset group.
type Withdrawal struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string    `gorm:"index;not null" json:"user_id"`
	ChainID      string    `gorm:"type:varchar(64);not null" json:"chain_id"`
	TokenSymbol  string    `gorm:"type:varchar(64);not null" json:"token_symbol"`
	TokenAddress string    `gorm:"type:varchar(128);not null" json:"token_address"`
	Amount       float64   `gorm:"not null" json:"amount"`
	ToAddress    string    `gorm:"type:varchar(128)" json:"to_address"`
	CreatedAt    time.Time `json:"created_at"`

	Debits []WithdrawalDebit `gorm:"foreignKey:WithdrawalID" json:"debits,omitempty"`
}

// WithdrawalDebit records how much of a withdrawal was settled against one
// source box — the persisted form of the per-box debit map.
type WithdrawalDebit struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	WithdrawalID string    `gorm:"index;not null" json:"withdrawal_id"`
	BoxID        string    `gorm:"index;not null" json:"box_id"`
	Amount       float64   `gorm:"not null" json:"amount"`
	CreatedAt    time.Time `json:"created_at"`
}
