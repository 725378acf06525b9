// services/dig_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"treasure-dig-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DigService runs the reservation protocol: gate check → balance check →
// reservation write → claim write, all inside one box-locked transaction.
type DigService struct {
	DB         *gorm.DB
	Gate       *GateService
	Prices     *PriceClient
	RareEvents *RareEventNotifier
	Rand       RandSource
}

func NewDigService(db *gorm.DB, gate *GateService, prices *PriceClient, rareEvents *RareEventNotifier) *DigService {
	return &DigService{
		DB:         db,
		Gate:       gate,
		Prices:     prices,
		RareEvents: rareEvents,
		Rand:       DefaultRand,
	}
}

// ReserveResult — Already means a reservation with this digId was committed
// earlier; the retry is a no-op success, never an error or a second charge.
type ReserveResult struct {
	OK      bool `json:"ok"`
	Already bool `json:"already"`
}

// DigResult is the outcome of the composite dig.execute operation.
type DigResult struct {
	OK           bool          `json:"ok"`
	Already      bool          `json:"already"`
	DigID        string        `json:"dig_id"`
	RewardAmount float64       `json:"reward_amount"`
	USDValue     float64       `json:"usd_value"`
	Cost         float64       `json:"cost"`
	Claim        *models.Claim `json:"claim,omitempty"`
	GateCount    int           `json:"gate_count"`
}

// errDuplicateDig signals the unique dig_id index fired under a concurrent
// retry; translated to Already outside the transaction.
var errDuplicateDig = errors.New("duplicate dig id")

// Reserve appends a claim_reserve entry for digID against the box, running
// the gate and balance checks under the box row lock and applying the gate
// once the entry is in. Retries with the same digID return Already without
// a second entry and without moving the gate.
func (s *DigService) Reserve(userID, boxID, digID string, amount float64, priceUSD *float64) (*ReserveResult, error) {
	res := &ReserveResult{}
	var gatedBox *models.Box
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		box, err := lockBox(tx, boxID)
		if err != nil {
			return err
		}
		if !box.Diggable() {
			return ErrBoxNotDiggable
		}

		existing, err := findReservation(tx, digID, box.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			res.OK = true
			res.Already = true
			return nil
		}

		now := time.Now()
		gate, err := s.Gate.CheckGate(tx, userID, box, now)
		if err != nil {
			return err
		}
		if !gate.Allowed {
			if gate.Reason == GateReasonLimit {
				return ErrGateLimit
			}
			return fmt.Errorf("%w: next dig allowed in %dms", ErrGateCooldown, gate.RemainingCooldownMs)
		}

		bal, err := LoadBalances(tx, box.ID)
		if err != nil {
			return err
		}
		if amount > bal.Available+BalanceEpsilon {
			return ErrInsufficientBoxBalance
		}

		if err := appendReservation(tx, box, userID, digID, amount, priceUSD); err != nil {
			return err
		}
		if _, err := s.Gate.ApplyGate(tx, userID, box, now); err != nil {
			return err
		}
		gatedBox = box
		res.OK = true
		return nil
	})
	if errors.Is(err, errDuplicateDig) {
		return s.replayReserve(digID, boxID)
	}
	if err != nil {
		return nil, err
	}
	s.Gate.CacheCooldown(userID, gatedBox, time.Now())
	return res, nil
}

// findReservation loads the claim_reserve entry carrying digID, if any.
// A hit against a different box is a caller bug, not a replay.
func findReservation(tx *gorm.DB, digID, boxID string) (*models.BoxLedgerEntry, error) {
	var existing models.BoxLedgerEntry
	err := tx.Where("dig_id = ? AND kind = ?", digID, models.LedgerKindClaimReserve).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.BoxID != boxID {
		return nil, fmt.Errorf("%w: dig %s belongs to box %s", ErrDigIDConflict, digID, existing.BoxID)
	}
	return &existing, nil
}

// replayReserve rebuilds the idempotent response after losing a duplicate
// insert race.
func (s *DigService) replayReserve(digID, boxID string) (*ReserveResult, error) {
	if _, err := findReservation(s.DB, digID, boxID); err != nil {
		return nil, err
	}
	return &ReserveResult{OK: true, Already: true}, nil
}

// ExecuteDig is the composite operation behind POST /s/dig/execute:
// resolve user → load box → gate check → compute reward → reserve → record
// claim → apply gate, then notify the rare-event service out of band.
func (s *DigService) ExecuteDig(username, boxID, digID string) (*DigResult, error) {
	user, err := ResolveUser(s.DB, username)
	if err != nil {
		return nil, err
	}

	if digID == "" {
		digID = uuid.NewString()
	}

	// Best-effort, short-timeout; nil is fine and never blocks the dig.
	priceUSD := s.Prices.Snapshot(boxID)

	result := &DigResult{DigID: digID}
	var usdValue float64
	var notifyBox *models.Box

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		box, err := lockBox(tx, boxID)
		if err != nil {
			return err
		}
		if !box.Diggable() {
			return ErrBoxNotDiggable
		}
		result.Cost = box.CostPerDig

		// Retry of a committed dig: return the original outcome untouched.
		existing, err := findReservation(tx, digID, box.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			result.OK = true
			result.Already = true
			result.RewardAmount = existing.Amount
			var claim models.Claim
			if cErr := tx.Where("dig_id = ?", digID).First(&claim).Error; cErr == nil {
				result.Claim = &claim
			}
			return nil
		}

		now := time.Now()
		gate, err := s.Gate.CheckGate(tx, user.ExternalUserID, box, now)
		if err != nil {
			return err
		}
		if !gate.Allowed {
			if gate.Reason == GateReasonLimit {
				return ErrGateLimit
			}
			return fmt.Errorf("%w: next dig allowed in %dms", ErrGateCooldown, gate.RemainingCooldownMs)
		}

		bal, err := LoadBalances(tx, box.ID)
		if err != nil {
			return err
		}

		reward := ComputeReward(box, bal.Available, s.Rand)
		if reward.TokenAmount > bal.Available+BalanceEpsilon {
			return ErrInsufficientBoxBalance
		}
		result.RewardAmount = reward.TokenAmount
		result.USDValue = reward.USDValue
		usdValue = reward.USDValue

		if err := appendReservation(tx, box, user.ExternalUserID, digID, reward.TokenAmount, priceUSD); err != nil {
			return err
		}

		claim := models.Claim{
			ID:           uuid.NewString(),
			UserID:       user.ExternalUserID,
			BoxID:        box.ID,
			ChainID:      box.ChainID,
			TokenSymbol:  box.TokenSymbol,
			TokenAddress: box.TokenAddress,
			Amount:       reward.TokenAmount,
			Status:       models.ClaimStatusClaimed,
			DigID:        digID,
			CreatedAt:    now,
		}
		if err := tx.Create(&claim).Error; err != nil {
			return fmt.Errorf("failed to record claim: %w", err)
		}
		result.Claim = &claim

		state, err := s.Gate.ApplyGate(tx, user.ExternalUserID, box, now)
		if err != nil {
			return err
		}
		result.GateCount = state.DigCount
		result.OK = true
		notifyBox = box
		return nil
	})
	if errors.Is(err, errDuplicateDig) {
		// Lost a race against a concurrent retry of the same digId; the
		// winning transaction committed the dig, so report it as done.
		return s.replayDig(username, boxID, digID)
	}
	if err != nil {
		return nil, err
	}

	if notifyBox != nil {
		s.Gate.CacheCooldown(user.ExternalUserID, notifyBox, time.Now())
		s.RareEvents.Notify(usdValue, notifyBox.ChainID, notifyBox.TokenSymbol, user.ExternalUserID)
	}
	return result, nil
}

// replayDig rebuilds the idempotent response for an already-committed dig.
func (s *DigService) replayDig(username, boxID, digID string) (*DigResult, error) {
	entry, err := findReservation(s.DB, digID, boxID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, gorm.ErrRecordNotFound
	}
	result := &DigResult{OK: true, Already: true, DigID: digID, RewardAmount: entry.Amount}
	var box models.Box
	if err := s.DB.First(&box, "id = ?", boxID).Error; err == nil {
		result.Cost = box.CostPerDig
	}
	var claim models.Claim
	if err := s.DB.Where("dig_id = ?", digID).First(&claim).Error; err == nil {
		result.Claim = &claim
	}
	return result, nil
}

func lockBox(tx *gorm.DB, boxID string) (*models.Box, error) {
	var box models.Box
	err := forUpdate(tx).First(&box, "id = ?", boxID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBoxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &box, nil
}

// appendReservation writes the claim_reserve entry and bumps the box's
// reserved projection. Caller holds the box lock.
func appendReservation(tx *gorm.DB, box *models.Box, userID, digID string, amount float64, priceUSD *float64) error {
	entry := models.BoxLedgerEntry{
		ID:       uuid.NewString(),
		BoxID:    box.ID,
		Kind:     models.LedgerKindClaimReserve,
		Amount:   amount,
		DigID:    &digID,
		UserID:   userID,
		PriceUSD: priceUSD,
	}
	if err := tx.Create(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errDuplicateDig
		}
		return fmt.Errorf("failed to append reservation: %w", err)
	}

	box.ClaimedUnwithdrawn += amount
	if err := tx.Model(&models.Box{}).Where("id = ?", box.ID).
		Update("claimed_unwithdrawn", box.ClaimedUnwithdrawn).Error; err != nil {
		return fmt.Errorf("failed to update box projection: %w", err)
	}
	return nil
}

// --- HTTP handlers ---

// GateCheckHandler is the advisory pre-check. Read-only: incrementing the
// counter here would double-count whenever a client calls both this and
// the reservation path for the same dig.
func (s *DigService) GateCheckHandler(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		BoxID    string `json:"box_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Username == "" || req.BoxID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "username and box_id are required"})
	}

	user, err := ResolveUser(s.DB, req.Username)
	if err != nil {
		return respondServiceError(c, err)
	}

	var box models.Box
	if err := s.DB.First(&box, "id = ?", req.BoxID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondServiceError(c, ErrBoxNotFound)
		}
		return respondServiceError(c, err)
	}

	decision, err := s.Gate.CheckGate(s.DB, user.ExternalUserID, &box, time.Now())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"allowed":               decision.Allowed,
		"reason":                decision.Reason,
		"count":                 decision.DigCount,
		"max_digs":              decision.MaxDigs,
		"next_allowed_at":       decision.NextAllowedAt,
		"remaining_cooldown_ms": decision.RemainingCooldownMs,
	})
}

// ReserveHandler backs POST /s/dig/reserve.
func (s *DigService) ReserveHandler(c *fiber.Ctx) error {
	var req struct {
		Username string  `json:"username"`
		BoxID    string  `json:"box_id"`
		DigID    string  `json:"dig_id"`
		Amount   float64 `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Username == "" || req.BoxID == "" || req.DigID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "username, box_id and dig_id are required"})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be positive"})
	}

	user, err := ResolveUser(s.DB, req.Username)
	if err != nil {
		return respondServiceError(c, err)
	}

	priceUSD := s.Prices.Snapshot(req.BoxID)
	res, err := s.Reserve(user.ExternalUserID, req.BoxID, req.DigID, req.Amount, priceUSD)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}

// ExecuteHandler backs POST /s/dig/execute.
func (s *DigService) ExecuteHandler(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		BoxID    string `json:"box_id"`
		DigID    string `json:"dig_id"` // optional; server generates one when absent
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Username == "" || req.BoxID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "username and box_id are required"})
	}

	result, err := s.ExecuteDig(req.Username, req.BoxID, req.DigID)
	if err != nil {
		return respondServiceError(c, err)
	}
	if result.Already {
		log.Printf("[DIG] 🔁 Idempotent replay of dig %s on box %s", result.DigID, req.BoxID)
	} else {
		log.Printf("[DIG] ⛏️ %s dug box %s → %.8f %s", req.Username, req.BoxID,
			result.RewardAmount, resultSymbol(result))
	}
	return c.JSON(result)
}

func resultSymbol(r *DigResult) string {
	if r.Claim != nil {
		return r.Claim.TokenSymbol
	}
	return ""
}
