// services/box_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"treasure-dig-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// BoxService owns the reward pool store: sponsor configuration, funding,
// lifecycle transitions and the public balance summaries.
type BoxService struct {
	DB   *gorm.DB
	Gate *GateService
}

func NewBoxService(db *gorm.DB, gate *GateService) *BoxService {
	return &BoxService{DB: db, Gate: gate}
}

// BoxSummary is the public listing shape with ledger-derived balances.
type BoxSummary struct {
	models.Box
	DepositedTotal     float64 `json:"deposited_total"`
	WithdrawnSettled   float64 `json:"withdrawn_total_ledger"`
	ClaimedUnwithdrawn float64 `json:"claimed_unwithdrawn_total"`
	Available          float64 `json:"available"`
}

// CreateBox deploys an empty, inactive box for a sponsor.
func (s *BoxService) CreateBox(title, sponsorID string) (*models.Box, error) {
	if title == "" || sponsorID == "" {
		return nil, fmt.Errorf("title and sponsor are required")
	}
	id := uuid.NewString()
	box := models.Box{
		ID:        id,
		Title:     title,
		Slug:      slug.Make(title) + "-" + id[:8],
		SponsorID: sponsorID,
		Status:    models.BoxStatusInactive,
		Stage:     models.BoxStageDeployedEmpty,
	}
	if err := s.DB.Create(&box).Error; err != nil {
		return nil, fmt.Errorf("failed to create box: %w", err)
	}
	return &box, nil
}

// BindToken binds the asset identity. Allowed once, from deployed_empty.
func (s *BoxService) BindToken(boxID, chainID, tokenAddress, tokenSymbol string) (*models.Box, error) {
	var box *models.Box
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		b, err := lockBox(tx, boxID)
		if err != nil {
			return err
		}
		if b.Stage != models.BoxStageDeployedEmpty {
			return fmt.Errorf("%w: token already bound", ErrStageViolation)
		}
		b.ChainID = chainID
		b.TokenAddress = tokenAddress
		b.TokenSymbol = tokenSymbol
		b.Stage = models.BoxStageTokenBound
		box = b
		return tx.Save(b).Error
	})
	return box, err
}

// Fund appends a fund_in ledger entry and raises the on-chain projection.
func (s *BoxService) Fund(boxID string, amount float64, note string) (*models.Box, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("funding amount must be positive")
	}
	var box *models.Box
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		b, err := lockBox(tx, boxID)
		if err != nil {
			return err
		}
		if b.Stage == models.BoxStageDeployedEmpty {
			return fmt.Errorf("%w: bind a token before funding", ErrStageViolation)
		}
		if b.Status == models.BoxStatusEnded {
			return ErrBoxEnded
		}

		entry := models.BoxLedgerEntry{
			ID:     uuid.NewString(),
			BoxID:  b.ID,
			Kind:   models.LedgerKindFundIn,
			Amount: amount,
			Note:   note,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to append fund_in: %w", err)
		}

		b.OnChainBalance += amount
		if b.Stage == models.BoxStageTokenBound {
			b.Stage = models.BoxStageFunded
		}
		box = b
		return tx.Save(b).Error
	})
	return box, err
}

// BoxConfig is the sponsor-tunable dig configuration.
type BoxConfig struct {
	CostPerDig     float64           `json:"cost_per_dig"`
	CooldownHours  int               `json:"cooldown_hours"`
	RewardMode     models.RewardMode `json:"reward_mode"`
	RewardFixed    float64           `json:"reward_fixed"`
	RewardMin      float64           `json:"reward_min"`
	RewardMax      float64           `json:"reward_max"`
	MaxDigsPerUser int               `json:"max_digs_per_user"`
}

func (cfg *BoxConfig) validate() error {
	if cfg.CostPerDig < models.BoxCostMin || cfg.CostPerDig > models.BoxCostMax {
		return fmt.Errorf("cost_per_dig must be within [%g, %g]", models.BoxCostMin, models.BoxCostMax)
	}
	// Cooldown is meaningless on a one-time box; otherwise bounded.
	if cfg.MaxDigsPerUser != 1 {
		if cfg.CooldownHours < models.BoxCooldownMinHrs || cfg.CooldownHours > models.BoxCooldownMaxHrs {
			return fmt.Errorf("cooldown_hours must be within [%d, %d]", models.BoxCooldownMinHrs, models.BoxCooldownMaxHrs)
		}
	}
	if cfg.MaxDigsPerUser < 0 {
		return fmt.Errorf("max_digs_per_user must be zero (unlimited) or positive")
	}
	switch cfg.RewardMode {
	case models.RewardModeFixed:
		if cfg.RewardFixed <= 0 {
			return fmt.Errorf("reward_fixed must be positive")
		}
	case models.RewardModeRandom:
		if cfg.RewardMin <= 0 || cfg.RewardMax <= 0 {
			return fmt.Errorf("reward_min and reward_max must be positive")
		}
	default:
		return fmt.Errorf("reward_mode must be fixed or random")
	}
	return nil
}

// Configure applies the dig configuration and moves the box to configured.
func (s *BoxService) Configure(boxID string, cfg BoxConfig) (*models.Box, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	var box *models.Box
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		b, err := lockBox(tx, boxID)
		if err != nil {
			return err
		}
		if b.Stage != models.BoxStageFunded && b.Stage != models.BoxStageConfigured {
			return fmt.Errorf("%w: fund the box before configuring", ErrStageViolation)
		}
		if b.Status == models.BoxStatusEnded {
			return ErrBoxEnded
		}
		b.CostPerDig = cfg.CostPerDig
		b.CooldownHours = cfg.CooldownHours
		b.RewardMode = cfg.RewardMode
		b.RewardFixed = cfg.RewardFixed
		b.RewardMin = cfg.RewardMin
		b.RewardMax = cfg.RewardMax
		b.MaxDigsPerUser = cfg.MaxDigsPerUser
		b.Stage = models.BoxStageConfigured
		box = b
		return tx.Save(b).Error
	})
	return box, err
}

// SetStatus flips between inactive and active, or ends the box for good.
func (s *BoxService) SetStatus(boxID string, status models.BoxStatus) (*models.Box, error) {
	var box *models.Box
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		b, err := lockBox(tx, boxID)
		if err != nil {
			return err
		}
		if b.Status == models.BoxStatusEnded {
			return ErrBoxEnded
		}
		if status == models.BoxStatusActive && b.Stage != models.BoxStageConfigured {
			return fmt.Errorf("%w: only a configured box can activate", ErrStageViolation)
		}
		b.Status = status
		box = b
		return tx.Save(b).Error
	})
	return box, err
}

// Adjust appends an administrative compensating entry. The only sanctioned
// way to correct a box's balance — history is never mutated.
func (s *BoxService) Adjust(boxID string, amount float64, note string) (*models.BoxLedgerEntry, error) {
	if amount == 0 {
		return nil, fmt.Errorf("adjust amount must be non-zero")
	}
	var entry *models.BoxLedgerEntry
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		b, err := lockBox(tx, boxID)
		if err != nil {
			return err
		}
		e := models.BoxLedgerEntry{
			ID:     uuid.NewString(),
			BoxID:  b.ID,
			Kind:   models.LedgerKindAdjust,
			Amount: amount,
			Note:   note,
		}
		if err := tx.Create(&e).Error; err != nil {
			return fmt.Errorf("failed to append adjust: %w", err)
		}
		entry = &e
		return nil
	})
	return entry, err
}

// ListBoxes returns all boxes with their ledger-derived balances.
func (s *BoxService) ListBoxes() ([]BoxSummary, error) {
	var boxes []models.Box
	if err := s.DB.Order("created_at DESC").Find(&boxes).Error; err != nil {
		return nil, err
	}

	// One grouped pass over the ledger instead of a query per box.
	var rows []struct {
		BoxID string
		Kind  models.LedgerKind
		Total float64
	}
	err := s.DB.Model(&models.BoxLedgerEntry{}).
		Select("box_id, kind, COALESCE(SUM(amount), 0) AS total").
		Group("box_id, kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	type agg struct{ deposited, adjusted, reserved, withdrawn float64 }
	byBox := make(map[string]*agg)
	for _, r := range rows {
		a := byBox[r.BoxID]
		if a == nil {
			a = &agg{}
			byBox[r.BoxID] = a
		}
		switch r.Kind {
		case models.LedgerKindFundIn:
			a.deposited = r.Total
		case models.LedgerKindAdjust:
			a.adjusted = r.Total
		case models.LedgerKindClaimReserve:
			a.reserved = r.Total
		case models.LedgerKindWithdrawn:
			a.withdrawn = r.Total
		}
	}

	summaries := make([]BoxSummary, len(boxes))
	for i, b := range boxes {
		sum := BoxSummary{Box: b}
		if a := byBox[b.ID]; a != nil {
			sum.DepositedTotal = a.deposited
			sum.WithdrawnSettled = a.withdrawn
			sum.Available = a.deposited + a.adjusted - a.reserved
		}
		sum.ClaimedUnwithdrawn = b.ClaimedUnwithdrawn
		summaries[i] = sum
	}
	return summaries, nil
}

// --- HTTP handlers ---

func (s *BoxService) ListHandler(c *fiber.Ctx) error {
	summaries, err := s.ListBoxes()
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(summaries)
}

func (s *BoxService) GetHandler(c *fiber.Ctx) error {
	id := c.Params("id")
	var box models.Box
	if err := s.DB.First(&box, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondServiceError(c, ErrBoxNotFound)
		}
		return respondServiceError(c, err)
	}
	bal, err := LoadBalances(s.DB, box.ID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"box": box, "balances": bal})
}

func (s *BoxService) CreateHandler(c *fiber.Ctx) error {
	var req struct {
		Title     string `json:"title"`
		SponsorID string `json:"sponsor_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	box, err := s.CreateBox(req.Title, req.SponsorID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	log.Printf("[BOX] 📦 Created box %s (%s)", box.Slug, box.ID)
	return c.Status(fiber.StatusCreated).JSON(box)
}

func (s *BoxService) BindTokenHandler(c *fiber.Ctx) error {
	var req struct {
		ChainID      string `json:"chain_id"`
		TokenAddress string `json:"token_address"`
		TokenSymbol  string `json:"token_symbol"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.ChainID == "" || req.TokenSymbol == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "chain_id and token_symbol are required"})
	}
	box, err := s.BindToken(c.Params("id"), req.ChainID, req.TokenAddress, req.TokenSymbol)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(box)
}

func (s *BoxService) FundHandler(c *fiber.Ctx) error {
	var req struct {
		Amount float64 `json:"amount"`
		Note   string  `json:"note"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be positive"})
	}
	box, err := s.Fund(c.Params("id"), req.Amount, req.Note)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(box)
}

func (s *BoxService) ConfigureHandler(c *fiber.Ctx) error {
	var cfg BoxConfig
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	box, err := s.Configure(c.Params("id"), cfg)
	if err != nil {
		if errors.Is(err, ErrStageViolation) || errors.Is(err, ErrBoxNotFound) || errors.Is(err, ErrBoxEnded) {
			return respondServiceError(c, err)
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(box)
}

func (s *BoxService) StatusHandler(c *fiber.Ctx) error {
	var req struct {
		Status models.BoxStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	switch req.Status {
	case models.BoxStatusActive, models.BoxStatusInactive, models.BoxStatusEnded:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "status must be active, inactive or ended"})
	}
	box, err := s.SetStatus(c.Params("id"), req.Status)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(box)
}

func (s *BoxService) AdjustHandler(c *fiber.Ctx) error {
	var req struct {
		Amount float64 `json:"amount"`
		Note   string  `json:"note"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Amount == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be non-zero"})
	}
	entry, err := s.Adjust(c.Params("id"), req.Amount, req.Note)
	if err != nil {
		return respondServiceError(c, err)
	}
	log.Printf("[BOX] ⚖️ Adjust %+.8f on box %s (%s)", req.Amount, c.Params("id"), req.Note)
	return c.JSON(entry)
}

// Schedule sets the optional lifecycle timestamps the box scheduler acts on.
func (s *BoxService) Schedule(boxID string, activateAt, endAt *time.Time) (*models.Box, error) {
	var box *models.Box
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		b, err := lockBox(tx, boxID)
		if err != nil {
			return err
		}
		if b.Status == models.BoxStatusEnded {
			return ErrBoxEnded
		}
		b.ActivateAt = activateAt
		b.EndAt = endAt
		box = b
		return tx.Save(b).Error
	})
	return box, err
}

func (s *BoxService) ScheduleHandler(c *fiber.Ctx) error {
	var req struct {
		ActivateAt *time.Time `json:"activate_at"`
		EndAt      *time.Time `json:"end_at"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	box, err := s.Schedule(c.Params("id"), req.ActivateAt, req.EndAt)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(box)
}

// ResetGateHandler clears one user's gate state on a box. Administrative.
func (s *BoxService) ResetGateHandler(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}
	if err := s.Gate.ResetGate(req.UserID, c.Params("id")); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "gate reset", "user_id": req.UserID, "box_id": c.Params("id")})
}
