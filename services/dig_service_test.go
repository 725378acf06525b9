package services

import (
	"math/rand"
	"testing"
	"time"

	"treasure-dig-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newDigService(db *gorm.DB) *DigService {
	svc := NewDigService(db, NewGateService(db), NewPriceClient("", ""), NewRareEventNotifier("", ""))
	svc.Rand = rand.New(rand.NewSource(42))
	return svc
}

func TestReserve_Idempotent(t *testing.T) {
	db := newTestDB(t)
	svc := newDigService(db)
	box := seedBox(t, db, 50, fixedBoxConfig(1, 0.1, 1, 0))

	res, err := svc.Reserve("user-1", box.ID, "d1", 5, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, res.Already)

	// Retry with the same digId: no-op success, no second entry.
	res, err = svc.Reserve("user-1", box.ID, "d1", 5, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, res.Already)

	var count int64
	require.NoError(t, db.Model(&models.BoxLedgerEntry{}).
		Where("dig_id = ?", "d1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	bal, err := LoadBalances(db, box.ID)
	require.NoError(t, err)
	assert.InDelta(t, 45.0, bal.Available, BalanceEpsilon)

	// The replay never re-applies the gate.
	var gate models.DigGateState
	require.NoError(t, db.Where("box_id = ?", box.ID).First(&gate).Error)
	assert.Equal(t, 1, gate.DigCount)
}

func TestReserve_GateLimit(t *testing.T) {
	db := newTestDB(t)
	svc := newDigService(db)
	box := seedBox(t, db, 50, fixedBoxConfig(1, 0.1, 0, 1)) // one-time box

	res, err := svc.Reserve("user-1", box.ID, "d1", 1, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)

	// A fresh digId does not get around the per-user limit.
	_, err = svc.Reserve("user-1", box.ID, "d2", 1, nil)
	assert.ErrorIs(t, err, ErrGateLimit)

	var entries int64
	require.NoError(t, db.Model(&models.BoxLedgerEntry{}).
		Where("kind = ?", models.LedgerKindClaimReserve).Count(&entries).Error)
	assert.Equal(t, int64(1), entries)

	var gate models.DigGateState
	require.NoError(t, db.Where("user_id = ? AND box_id = ?", "user-1", box.ID).First(&gate).Error)
	assert.Equal(t, 1, gate.DigCount)
}

func TestReserve_GateCooldown(t *testing.T) {
	db := newTestDB(t)
	svc := newDigService(db)
	box := seedBox(t, db, 50, fixedBoxConfig(1, 0.1, 1, 3))

	_, err := svc.Reserve("user-1", box.ID, "d1", 1, nil)
	require.NoError(t, err)

	_, err = svc.Reserve("user-1", box.ID, "d2", 1, nil)
	assert.ErrorIs(t, err, ErrGateCooldown)

	// Another digger is unaffected.
	res, err := svc.Reserve("user-2", box.ID, "d3", 1, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestReserve_DigIDReusedAcrossBoxes(t *testing.T) {
	db := newTestDB(t)
	svc := newDigService(db)
	boxA := seedBox(t, db, 50, fixedBoxConfig(1, 0.1, 1, 0))
	boxB := seedBox(t, db, 50, fixedBoxConfig(1, 0.1, 1, 0))

	_, err := svc.Reserve("user-1", boxA.ID, "d1", 1, nil)
	require.NoError(t, err)

	// The same digId against a different box is a conflict, not a replay.
	_, err = svc.Reserve("user-1", boxB.ID, "d1", 1, nil)
	assert.ErrorIs(t, err, ErrDigIDConflict)

	seedUser(t, db, "blackbeard")
	_, err = svc.ExecuteDig("blackbeard", boxB.ID, "d1")
	assert.ErrorIs(t, err, ErrDigIDConflict)

	var entries int64
	require.NoError(t, db.Model(&models.BoxLedgerEntry{}).
		Where("dig_id = ?", "d1").Count(&entries).Error)
	assert.Equal(t, int64(1), entries)
}

func TestReserve_InsufficientBalance(t *testing.T) {
	db := newTestDB(t)
	svc := newDigService(db)
	box := seedBox(t, db, 10, fixedBoxConfig(1, 0.1, 1, 0))

	_, err := svc.Reserve("user-1", box.ID, "d1", 10.5, nil)
	assert.ErrorIs(t, err, ErrInsufficientBoxBalance)

	// Rejection mutates nothing.
	var count int64
	require.NoError(t, db.Model(&models.BoxLedgerEntry{}).
		Where("kind = ?", models.LedgerKindClaimReserve).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReserve_BoxNotDiggable(t *testing.T) {
	db := newTestDB(t)
	svc := newDigService(db)
	box := seedBox(t, db, 10, fixedBoxConfig(1, 0.1, 1, 0))

	boxSvc := NewBoxService(db, NewGateService(db))
	_, err := boxSvc.SetStatus(box.ID, models.BoxStatusInactive)
	require.NoError(t, err)

	_, err = svc.Reserve("user-1", box.ID, "d1", 1, nil)
	assert.ErrorIs(t, err, ErrBoxNotDiggable)
}

func TestReserve_BoxNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := newDigService(db)

	_, err := svc.Reserve("user-1", "missing-box", "d1", 1, nil)
	assert.ErrorIs(t, err, ErrBoxNotFound)
}

func TestExecuteDig_EndToEnd(t *testing.T) {
	db := newTestDB(t)
	svc := newDigService(db)
	user := seedUser(t, db, "blackbeard")
	box := seedBox(t, db, 50, fixedBoxConfig(1, 0.1, 1, 0))

	result, err := svc.ExecuteDig("blackbeard", box.ID, "")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.False(t, result.Already)
	assert.NotEmpty(t, result.DigID)
	assert.InDelta(t, 0.1, result.RewardAmount, BalanceEpsilon)
	assert.InDelta(t, 1.0, result.Cost, BalanceEpsilon)
	assert.Equal(t, 1, result.GateCount)

	bal, err := LoadBalances(db, box.ID)
	require.NoError(t, err)
	assert.InDelta(t, 49.9, bal.Available, BalanceEpsilon)

	require.NotNil(t, result.Claim)
	assert.Equal(t, user.ExternalUserID, result.Claim.UserID)
	assert.Equal(t, models.ClaimStatusClaimed, result.Claim.Status)
	assert.InDelta(t, 0.1, result.Claim.Amount, BalanceEpsilon)
	assert.Equal(t, "USDDD", result.Claim.TokenSymbol)

	var reloaded models.Box
	require.NoError(t, db.First(&reloaded, "id = ?", box.ID).Error)
	assert.InDelta(t, 0.1, reloaded.ClaimedUnwithdrawn, BalanceEpsilon)
}

func TestExecuteDig_IdempotentReplay(t *testing.T) {
	db := newTestDB(t)
	svc := newDigService(db)
	seedUser(t, db, "blackbeard")
	box := seedBox(t, db, 50, fixedBoxConfig(1, 0.1, 1, 0))

	first, err := svc.ExecuteDig("blackbeard", box.ID, "dig-abc")
	require.NoError(t, err)
	require.True(t, first.OK)

	second, err := svc.ExecuteDig("blackbeard", box.ID, "dig-abc")
	require.NoError(t, err)
	assert.True(t, second.OK)
	assert.True(t, second.Already)
	assert.InDelta(t, first.RewardAmount, second.RewardAmount, BalanceEpsilon)

	// Exactly one reservation, one claim, one gate increment.
	var entries, claims int64
	require.NoError(t, db.Model(&models.BoxLedgerEntry{}).
		Where("dig_id = ?", "dig-abc").Count(&entries).Error)
	require.NoError(t, db.Model(&models.Claim{}).
		Where("dig_id = ?", "dig-abc").Count(&claims).Error)
	assert.Equal(t, int64(1), entries)
	assert.Equal(t, int64(1), claims)

	var gate models.DigGateState
	require.NoError(t, db.Where("box_id = ?", box.ID).First(&gate).Error)
	assert.Equal(t, 1, gate.DigCount)
}

func TestExecuteDig_GateLimit(t *testing.T) {
	db := newTestDB(t)
	svc := newDigService(db)
	seedUser(t, db, "blackbeard")
	box := seedBox(t, db, 50, fixedBoxConfig(1, 0.1, 0, 1)) // one-time box

	_, err := svc.ExecuteDig("blackbeard", box.ID, "")
	require.NoError(t, err)

	_, err = svc.ExecuteDig("blackbeard", box.ID, "")
	assert.ErrorIs(t, err, ErrGateLimit)
}

func TestExecuteDig_GateCooldown(t *testing.T) {
	db := newTestDB(t)
	svc := newDigService(db)
	seedUser(t, db, "blackbeard")
	box := seedBox(t, db, 50, fixedBoxConfig(1, 0.1, 1, 3))

	_, err := svc.ExecuteDig("blackbeard", box.ID, "")
	require.NoError(t, err)

	// Immediate second dig sits inside the 1h cooldown.
	_, err = svc.ExecuteDig("blackbeard", box.ID, "")
	assert.ErrorIs(t, err, ErrGateCooldown)

	// Backdate the last dig past the cooldown: next dig goes through.
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&models.DigGateState{}).
		Where("box_id = ?", box.ID).
		Update("last_dig_at", past).Error)

	result, err := svc.ExecuteDig("blackbeard", box.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.GateCount)
}

func TestExecuteDig_EmptyBoxRejected(t *testing.T) {
	db := newTestDB(t)
	svc := newDigService(db)
	seedUser(t, db, "blackbeard")
	box := seedBox(t, db, 5, fixedBoxConfig(1, 5, 1, 0))

	// First dig drains the box completely.
	_, err := svc.ExecuteDig("blackbeard", box.ID, "")
	require.NoError(t, err)

	seedUser(t, db, "calico-jack")
	_, err = svc.ExecuteDig("calico-jack", box.ID, "")
	assert.ErrorIs(t, err, ErrInsufficientBoxBalance)
}

func TestExecuteDig_UnknownUser(t *testing.T) {
	db := newTestDB(t)
	svc := newDigService(db)
	box := seedBox(t, db, 50, fixedBoxConfig(1, 0.1, 1, 0))

	_, err := svc.ExecuteDig("nobody", box.ID, "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
