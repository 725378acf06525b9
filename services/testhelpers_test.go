package services

import (
	"testing"
	"time"

	"treasure-dig-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Box{},
		&models.BoxLedgerEntry{},
		&models.DigGateState{},
		&models.Claim{},
		&models.Withdrawal{},
		&models.WithdrawalDebit{},
		&models.DiggerUser{},
	))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.DiggerUser {
	t.Helper()
	user := models.DiggerUser{
		ID:             uuid.NewString(),
		ExternalUserID: uuid.NewString(),
		Username:       username,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

// seedBox walks a box through the full stage machine: create → bind token →
// fund → configure → activate.
func seedBox(t *testing.T, db *gorm.DB, funding float64, cfg BoxConfig) *models.Box {
	t.Helper()
	svc := NewBoxService(db, NewGateService(db))

	box, err := svc.CreateBox("Sunken Chest", "sponsor-1")
	require.NoError(t, err)

	box, err = svc.BindToken(box.ID, "8453", "0xdddd000000000000000000000000000000000001", "USDDD")
	require.NoError(t, err)

	box, err = svc.Fund(box.ID, funding, "initial funding")
	require.NoError(t, err)

	box, err = svc.Configure(box.ID, cfg)
	require.NoError(t, err)

	box, err = svc.SetStatus(box.ID, models.BoxStatusActive)
	require.NoError(t, err)
	return box
}

func seedClaim(t *testing.T, db *gorm.DB, userID, boxID string, amount float64, createdAt time.Time) *models.Claim {
	t.Helper()
	claim := models.Claim{
		ID:           uuid.NewString(),
		UserID:       userID,
		BoxID:        boxID,
		ChainID:      "8453",
		TokenSymbol:  "USDDD",
		TokenAddress: "0xdddd000000000000000000000000000000000001",
		Amount:       amount,
		Status:       models.ClaimStatusClaimed,
		DigID:        uuid.NewString(),
		CreatedAt:    createdAt,
	}
	require.NoError(t, db.Create(&claim).Error)
	return &claim
}

func fixedBoxConfig(cost, reward float64, cooldownHours, maxDigs int) BoxConfig {
	return BoxConfig{
		CostPerDig:     cost,
		CooldownHours:  cooldownHours,
		RewardMode:     models.RewardModeFixed,
		RewardFixed:    reward,
		MaxDigsPerUser: maxDigs,
	}
}
