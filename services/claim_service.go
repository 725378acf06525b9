// services/claim_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"treasure-dig-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClaimService is the claim ledger plus the withdrawal consumer.
type ClaimService struct {
	DB *gorm.DB
}

func NewClaimService(db *gorm.DB) *ClaimService {
	return &ClaimService{DB: db}
}

// AssetGroupKey scopes a withdrawal to one asset identity.
type AssetGroupKey struct {
	ChainID      string `json:"chain_id"`
	TokenSymbol  string `json:"token_symbol"`
	TokenAddress string `json:"token_address"`
}

// WithdrawResult carries the settlement record id and the per-box debit
// map so the caller can emit one settlement event per source box.
type WithdrawResult struct {
	OK           bool               `json:"ok"`
	WithdrawalID string             `json:"withdrawal_id"`
	Amount       float64            `json:"amount"`
	PerBoxDebit  map[string]float64 `json:"per_box_debit"`
}

// ListClaims returns every claim owned by the user, newest first.
func (s *ClaimService) ListClaims(userID string) ([]models.Claim, error) {
	var claims []models.Claim
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&claims).Error
	return claims, err
}

// ListAssetGroups aggregates the user's CLAIMED claims by asset identity.
// Computed on demand; nothing is stored.
func (s *ClaimService) ListAssetGroups(userID string) ([]models.AssetGroup, error) {
	var groups []models.AssetGroup
	err := s.DB.Model(&models.Claim{}).
		Select(`chain_id,
			token_symbol,
			token_address,
			COALESCE(SUM(amount), 0) AS amount,
			COUNT(*) AS claims_count,
			COUNT(DISTINCT box_id) AS boxes_count`).
		Where("user_id = ? AND status = ?", userID, models.ClaimStatusClaimed).
		Group("chain_id, token_symbol, token_address").
		Order("chain_id, token_symbol").
		Scan(&groups).Error
	return groups, err
}

// Withdraw consumes the user's CLAIMED claims in the asset group oldest
// first until amount is satisfied. A claim fully covered is marked
// WITHDRAWN in place; the single boundary claim is split — the original
// keeps the remainder (CLAIMED), a new claim holds exactly the consumed
// portion (WITHDRAWN). Per-box debits are then settled against the source
// boxes and recorded as withdrawn ledger entries, all in one transaction.
func (s *ClaimService) Withdraw(userID string, group AssetGroupKey, amount float64, toAddress string) (*WithdrawResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", ErrAmountExceedsAvailable)
	}

	result := &WithdrawResult{PerBoxDebit: make(map[string]float64)}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var claims []models.Claim
		err := forUpdate(tx).
			Where("user_id = ? AND chain_id = ? AND token_symbol = ? AND token_address = ? AND status = ?",
				userID, group.ChainID, group.TokenSymbol, group.TokenAddress, models.ClaimStatusClaimed).
			Order("created_at ASC, id ASC").
			Find(&claims).Error
		if err != nil {
			return err
		}

		var total float64
		for _, c := range claims {
			total += c.Amount
		}
		if amount > total+BalanceEpsilon {
			return ErrAmountExceedsAvailable
		}

		now := time.Now()
		remaining := amount
		for i := range claims {
			if remaining <= BalanceEpsilon {
				break
			}
			claim := &claims[i]

			if claim.Amount <= remaining+BalanceEpsilon {
				// Fully consumed: flip in place.
				consumed := claim.Amount
				claim.Status = models.ClaimStatusWithdrawn
				claim.WithdrawnAt = &now
				if err := tx.Save(claim).Error; err != nil {
					return fmt.Errorf("failed to withdraw claim %s: %w", claim.ID, err)
				}
				result.PerBoxDebit[claim.BoxID] += consumed
				remaining -= consumed
				continue
			}

			// Boundary claim: indexed split, no list rebuild. The original
			// keeps the remainder, the new record holds the consumed slice
			// and inherits the original creation time for traceability.
			consumed := remaining
			claim.Amount -= consumed
			if err := tx.Save(claim).Error; err != nil {
				return fmt.Errorf("failed to split claim %s: %w", claim.ID, err)
			}
			split := models.Claim{
				ID:           uuid.NewString(),
				UserID:       claim.UserID,
				BoxID:        claim.BoxID,
				ChainID:      claim.ChainID,
				TokenSymbol:  claim.TokenSymbol,
				TokenAddress: claim.TokenAddress,
				Amount:       consumed,
				Status:       models.ClaimStatusWithdrawn,
				DigID:        claim.DigID,
				SplitFromID:  &claim.ID,
				CreatedAt:    claim.CreatedAt,
				WithdrawnAt:  &now,
			}
			if err := tx.Create(&split).Error; err != nil {
				return fmt.Errorf("failed to create split claim: %w", err)
			}
			result.PerBoxDebit[claim.BoxID] += consumed
			remaining = 0
		}

		// Settle debits against source boxes in a stable order so two
		// concurrent withdrawals can never lock boxes in opposite order.
		boxIDs := make([]string, 0, len(result.PerBoxDebit))
		for id := range result.PerBoxDebit {
			boxIDs = append(boxIDs, id)
		}
		sort.Strings(boxIDs)

		for _, boxID := range boxIDs {
			debit := result.PerBoxDebit[boxID]
			box, err := lockBox(tx, boxID)
			if err != nil {
				return err
			}
			box.ClaimedUnwithdrawn -= debit
			box.OnChainBalance -= debit
			box.WithdrawnTotal += debit
			if err := tx.Model(&models.Box{}).Where("id = ?", box.ID).
				Updates(map[string]interface{}{
					"claimed_unwithdrawn": box.ClaimedUnwithdrawn,
					"on_chain_balance":    box.OnChainBalance,
					"withdrawn_total":     box.WithdrawnTotal,
				}).Error; err != nil {
				return fmt.Errorf("failed to settle box %s: %w", boxID, err)
			}

			entry := models.BoxLedgerEntry{
				ID:     uuid.NewString(),
				BoxID:  boxID,
				Kind:   models.LedgerKindWithdrawn,
				Amount: debit,
				UserID: userID,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("failed to append withdrawn entry: %w", err)
			}
		}

		withdrawal := models.Withdrawal{
			ID:           uuid.NewString(),
			UserID:       userID,
			ChainID:      group.ChainID,
			TokenSymbol:  group.TokenSymbol,
			TokenAddress: group.TokenAddress,
			Amount:       amount,
			ToAddress:    toAddress,
		}
		if err := tx.Create(&withdrawal).Error; err != nil {
			return fmt.Errorf("failed to record withdrawal: %w", err)
		}
		for _, boxID := range boxIDs {
			debit := models.WithdrawalDebit{
				ID:           uuid.NewString(),
				WithdrawalID: withdrawal.ID,
				BoxID:        boxID,
				Amount:       result.PerBoxDebit[boxID],
			}
			if err := tx.Create(&debit).Error; err != nil {
				return fmt.Errorf("failed to record withdrawal debit: %w", err)
			}
		}

		result.OK = true
		result.WithdrawalID = withdrawal.ID
		result.Amount = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WithdrawClaim settles one claim in full, bypassing the FIFO walk. The
// claim-id form of the withdrawal request; the asset-group form above is
// the right tool for partial amounts.
func (s *ClaimService) WithdrawClaim(userID, claimID, toAddress string) (*WithdrawResult, error) {
	result := &WithdrawResult{PerBoxDebit: make(map[string]float64)}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var claim models.Claim
		err := forUpdate(tx).Where("id = ? AND user_id = ?", claimID, userID).First(&claim).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClaimNotFound
		}
		if err != nil {
			return err
		}
		if claim.Status != models.ClaimStatusClaimed {
			return ErrClaimAlreadyWithdrawn
		}

		now := time.Now()
		claim.Status = models.ClaimStatusWithdrawn
		claim.WithdrawnAt = &now
		if err := tx.Save(&claim).Error; err != nil {
			return fmt.Errorf("failed to withdraw claim %s: %w", claim.ID, err)
		}
		result.PerBoxDebit[claim.BoxID] = claim.Amount

		box, err := lockBox(tx, claim.BoxID)
		if err != nil {
			return err
		}
		box.ClaimedUnwithdrawn -= claim.Amount
		box.OnChainBalance -= claim.Amount
		box.WithdrawnTotal += claim.Amount
		if err := tx.Model(&models.Box{}).Where("id = ?", box.ID).
			Updates(map[string]interface{}{
				"claimed_unwithdrawn": box.ClaimedUnwithdrawn,
				"on_chain_balance":    box.OnChainBalance,
				"withdrawn_total":     box.WithdrawnTotal,
			}).Error; err != nil {
			return fmt.Errorf("failed to settle box %s: %w", box.ID, err)
		}

		entry := models.BoxLedgerEntry{
			ID:     uuid.NewString(),
			BoxID:  claim.BoxID,
			Kind:   models.LedgerKindWithdrawn,
			Amount: claim.Amount,
			UserID: userID,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to append withdrawn entry: %w", err)
		}

		withdrawal := models.Withdrawal{
			ID:           uuid.NewString(),
			UserID:       userID,
			ChainID:      claim.ChainID,
			TokenSymbol:  claim.TokenSymbol,
			TokenAddress: claim.TokenAddress,
			Amount:       claim.Amount,
			ToAddress:    toAddress,
		}
		if err := tx.Create(&withdrawal).Error; err != nil {
			return fmt.Errorf("failed to record withdrawal: %w", err)
		}
		debit := models.WithdrawalDebit{
			ID:           uuid.NewString(),
			WithdrawalID: withdrawal.ID,
			BoxID:        claim.BoxID,
			Amount:       claim.Amount,
		}
		if err := tx.Create(&debit).Error; err != nil {
			return fmt.Errorf("failed to record withdrawal debit: %w", err)
		}

		result.OK = true
		result.WithdrawalID = withdrawal.ID
		result.Amount = claim.Amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// --- HTTP handlers ---

// ListHandler backs GET /s/claims.
func (s *ClaimService) ListHandler(c *fiber.Ctx) error {
	user, err := s.resolveRequestUser(c)
	if err != nil {
		return respondServiceError(c, err)
	}
	claims, err := s.ListClaims(user.ExternalUserID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(claims)
}

// GroupsHandler backs GET /s/claims/groups.
func (s *ClaimService) GroupsHandler(c *fiber.Ctx) error {
	user, err := s.resolveRequestUser(c)
	if err != nil {
		return respondServiceError(c, err)
	}
	groups, err := s.ListAssetGroups(user.ExternalUserID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(groups)
}

// WithdrawHandler backs POST /s/claims/withdraw. Accepts either a single
// claim_id (settled in full) or an asset group + amount (FIFO consume).
func (s *ClaimService) WithdrawHandler(c *fiber.Ctx) error {
	var req struct {
		ClaimID      string  `json:"claim_id"`
		ChainID      string  `json:"chain_id"`
		TokenSymbol  string  `json:"token_symbol"`
		TokenAddress string  `json:"token_address"`
		Amount       float64 `json:"amount"`
		ToAddress    string  `json:"to_address"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.ToAddress == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "to_address is required"})
	}

	user, err := s.resolveRequestUser(c)
	if err != nil {
		return respondServiceError(c, err)
	}

	if req.ClaimID != "" {
		result, err := s.WithdrawClaim(user.ExternalUserID, req.ClaimID, req.ToAddress)
		if err != nil {
			return respondServiceError(c, err)
		}
		log.Printf("[WITHDRAW] 💸 %s withdrew claim %s (%.8f)",
			user.Username, req.ClaimID, result.Amount)
		return c.JSON(result)
	}

	if req.ChainID == "" || req.TokenSymbol == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "claim_id or chain_id and token_symbol are required"})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be positive"})
	}

	group := AssetGroupKey{
		ChainID:      req.ChainID,
		TokenSymbol:  req.TokenSymbol,
		TokenAddress: req.TokenAddress,
	}
	result, err := s.Withdraw(user.ExternalUserID, group, req.Amount, req.ToAddress)
	if err != nil {
		return respondServiceError(c, err)
	}

	log.Printf("[WITHDRAW] 💸 %s withdrew %.8f %s across %d box(es)",
		user.Username, result.Amount, req.TokenSymbol, len(result.PerBoxDebit))
	return c.JSON(result)
}

// resolveRequestUser maps the gateway's X-User-ID context onto the mirror.
func (s *ClaimService) resolveRequestUser(c *fiber.Ctx) (*models.DiggerUser, error) {
	externalID, _ := c.Locals("user_id").(string)
	if externalID == "" {
		return nil, ErrUserNotFound
	}
	return ResolveUserByExternalID(s.DB, externalID)
}
