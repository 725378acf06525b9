package services

import (
	"testing"

	"treasure-dig-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(boxID string, kind models.LedgerKind, amount float64) models.BoxLedgerEntry {
	return models.BoxLedgerEntry{ID: uuid.NewString(), BoxID: boxID, Kind: kind, Amount: amount}
}

func TestComputeBalances(t *testing.T) {
	entries := []models.BoxLedgerEntry{
		entry("b1", models.LedgerKindFundIn, 50),
		entry("b1", models.LedgerKindFundIn, 10),
		entry("b1", models.LedgerKindAdjust, -2),
		entry("b1", models.LedgerKindClaimReserve, 5),
		entry("b1", models.LedgerKindClaimReserve, 3),
		entry("b1", models.LedgerKindWithdrawn, 4),
	}

	b := ComputeBalances(entries)
	assert.InDelta(t, 60.0, b.DepositedTotal, BalanceEpsilon)
	assert.InDelta(t, -2.0, b.AdjustTotal, BalanceEpsilon)
	assert.InDelta(t, 8.0, b.ReservedTotal, BalanceEpsilon)
	assert.InDelta(t, 4.0, b.WithdrawnTotal, BalanceEpsilon)

	// available = Σfund_in + Σadjust − Σclaim_reserve; withdrawn entries
	// must not move it.
	assert.InDelta(t, 50.0, b.Available, BalanceEpsilon)
}

func TestComputeBalances_Empty(t *testing.T) {
	b := ComputeBalances(nil)
	assert.Zero(t, b.Available)
	assert.Zero(t, b.DepositedTotal)
}

func TestLoadBalances_MatchesComputed(t *testing.T) {
	db := newTestDB(t)

	entries := []models.BoxLedgerEntry{
		entry("b1", models.LedgerKindFundIn, 25),
		entry("b1", models.LedgerKindClaimReserve, 1.5),
		entry("b1", models.LedgerKindAdjust, 0.5),
		entry("b1", models.LedgerKindWithdrawn, 1.0),
		entry("b2", models.LedgerKindFundIn, 999), // other box, must not leak
	}
	for i := range entries {
		require.NoError(t, db.Create(&entries[i]).Error)
	}

	loaded, err := LoadBalances(db, "b1")
	require.NoError(t, err)

	computed := ComputeBalances(entries[:4])
	assert.InDelta(t, computed.Available, loaded.Available, BalanceEpsilon)
	assert.InDelta(t, computed.DepositedTotal, loaded.DepositedTotal, BalanceEpsilon)
	assert.InDelta(t, computed.ReservedTotal, loaded.ReservedTotal, BalanceEpsilon)
	assert.InDelta(t, computed.WithdrawnTotal, loaded.WithdrawnTotal, BalanceEpsilon)
	assert.InDelta(t, 24.0, loaded.Available, BalanceEpsilon)
}
