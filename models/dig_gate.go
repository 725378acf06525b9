package models

import "time"

// DigGateState is the per-(user, box) rate-limit record. Created on the
// first successful dig; DigCount only ever grows. Cleared only by an
// explicit administrative reset.
type DigGateState struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string     `gorm:"uniqueIndex:idx_gate_user_box;not null" json:"user_id"`
	BoxID     string     `gorm:"uniqueIndex:idx_gate_user_box;not null" json:"box_id"`
	DigCount  int        `gorm:"not null;default:0" json:"dig_count"`
	LastDigAt *time.Time `json:"last_dig_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
