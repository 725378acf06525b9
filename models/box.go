package models

import (
	"time"

	"gorm.io/gorm"
)

// BoxStatus is the lifecycle status of a box. ENDED is terminal.
type BoxStatus string

const (
	BoxStatusInactive BoxStatus = "inactive"
	BoxStatusActive   BoxStatus = "active"
	BoxStatusEnded    BoxStatus = "ended"
)

// BoxStage tracks how far a sponsor got through configuring a box.
type BoxStage string

const (
	BoxStageDeployedEmpty BoxStage = "deployed_empty"
	BoxStageTokenBound    BoxStage = "token_bound"
	BoxStageFunded        BoxStage = "funded"
	BoxStageConfigured    BoxStage = "configured"
)

// RewardMode selects between a fixed payout and a uniform random range.
type RewardMode string

const (
	RewardModeFixed  RewardMode = "fixed"
	RewardModeRandom RewardMode = "random"
)

// Box configuration bounds (token units for cost, hours for cooldown).
const (
	BoxCostMin        = 0.01
	BoxCostMax        = 10000.0
	BoxCooldownMinHrs = 1
	BoxCooldownMaxHrs = 168
)

// Box is a sponsor-funded reward pool users can dig against.
// Available balance is never stored here — it is derived from the ledger
// (see services.ComputeBalances). OnChainBalance, ClaimedUnwithdrawn and
// WithdrawnTotal are running projections maintained by the engine.
type Box struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	Title     string `gorm:"not null" json:"title"`
	Slug      string `gorm:"uniqueIndex;not null" json:"slug"`
	SponsorID string `gorm:"index;not null" json:"sponsor_id"`

	// Asset identity — immutable once the box leaves deployed_empty.
	ChainID      string `gorm:"type:varchar(64)" json:"chain_id"`
	TokenAddress string `gorm:"type:varchar(128)" json:"token_address"`
	TokenSymbol  string `gorm:"type:varchar(64)" json:"token_symbol"`

	CostPerDig     float64    `json:"cost_per_dig"`
	CooldownHours  int        `json:"cooldown_hours"`
	RewardMode     RewardMode `gorm:"type:varchar(16);default:'fixed'" json:"reward_mode"`
	RewardFixed    float64    `json:"reward_fixed"`
	RewardMin      float64    `json:"reward_min"`
	RewardMax      float64    `json:"reward_max"`
	MaxDigsPerUser int        `json:"max_digs_per_user"` // 0 = unlimited

	Status BoxStatus `gorm:"type:varchar(16);not null;default:'inactive';index" json:"status"`
	Stage  BoxStage  `gorm:"type:varchar(24);not null;default:'deployed_empty'" json:"stage"`

	// Projections updated inside the same transaction as the ledger writes.
	OnChainBalance     float64 `json:"on_chain_balance"`
	ClaimedUnwithdrawn float64 `json:"claimed_unwithdrawn"`
	WithdrawnTotal     float64 `json:"withdrawn_total"`

	// Optional lifecycle schedule, handled by the box scheduler.
	ActivateAt *time.Time `json:"activate_at,omitempty"`
	EndAt      *time.Time `json:"end_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Diggable reports whether the box accepts dig reservations.
func (b *Box) Diggable() bool {
	return b.Status == BoxStatusActive && b.Stage == BoxStageConfigured
}

// OneTime reports whether the box is a one-dig-per-user box, which has no
// cooldown concept at all.
func (b *Box) OneTime() bool {
	return b.MaxDigsPerUser == 1
}
