package services

import (
	"treasure-dig-system/models"

	"gorm.io/gorm"
)

// BalanceEpsilon absorbs float rounding when comparing ledger-derived
// amounts against requested amounts.
const BalanceEpsilon = 1e-9

// BoxBalances is the ledger-derived view of one box.
//
//	Available = DepositedTotal + AdjustTotal − ReservedTotal
//
// Withdrawn entries never touch Available: a claim is already reserved
// before it is withdrawn.
type BoxBalances struct {
	DepositedTotal float64 `json:"deposited_total"`
	AdjustTotal    float64 `json:"adjust_total"`
	ReservedTotal  float64 `json:"reserved_total"`
	WithdrawnTotal float64 `json:"withdrawn_total"`
	Available      float64 `json:"available"`
}

// ComputeBalances folds ledger entries into balances. Pure function — the
// rest of the engine must not compute availability any other way.
func ComputeBalances(entries []models.BoxLedgerEntry) BoxBalances {
	var b BoxBalances
	for _, e := range entries {
		switch e.Kind {
		case models.LedgerKindFundIn:
			b.DepositedTotal += e.Amount
		case models.LedgerKindAdjust:
			b.AdjustTotal += e.Amount
		case models.LedgerKindClaimReserve:
			b.ReservedTotal += e.Amount
		case models.LedgerKindWithdrawn:
			b.WithdrawnTotal += e.Amount
		}
	}
	b.Available = b.DepositedTotal + b.AdjustTotal - b.ReservedTotal
	return b
}

// LoadBalances aggregates one box's ledger in SQL. Call inside the same
// transaction that holds the box lock when the result gates a write.
func LoadBalances(tx *gorm.DB, boxID string) (BoxBalances, error) {
	var rows []struct {
		Kind  models.LedgerKind
		Total float64
	}
	err := tx.Model(&models.BoxLedgerEntry{}).
		Select("kind, COALESCE(SUM(amount), 0) AS total").
		Where("box_id = ?", boxID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return BoxBalances{}, err
	}

	var b BoxBalances
	for _, r := range rows {
		switch r.Kind {
		case models.LedgerKindFundIn:
			b.DepositedTotal = r.Total
		case models.LedgerKindAdjust:
			b.AdjustTotal = r.Total
		case models.LedgerKindClaimReserve:
			b.ReservedTotal = r.Total
		case models.LedgerKindWithdrawn:
			b.WithdrawnTotal = r.Total
		}
	}
	b.Available = b.DepositedTotal + b.AdjustTotal - b.ReservedTotal
	return b, nil
}
