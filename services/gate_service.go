// services/gate_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"treasure-dig-system/models"
	"treasure-dig-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GateReason classifies a gate rejection.
type GateReason string

const (
	GateReasonLimit    GateReason = "limit"
	GateReasonCooldown GateReason = "cooldown"
)

// GateDecision is the outcome of a gate evaluation. Evaluating never
// mutates anything — counters move only in ApplyGate, after a reservation
// actually succeeded, so the gate reflects successful digs, not attempts.
type GateDecision struct {
	Allowed             bool       `json:"allowed"`
	Reason              GateReason `json:"reason,omitempty"`
	DigCount            int        `json:"dig_count"`
	MaxDigs             int        `json:"max_digs"` // 0 = unlimited
	RemainingCooldownMs int64      `json:"remaining_cooldown_ms,omitempty"`
	NextAllowedAt       *time.Time `json:"next_allowed_at,omitempty"`
}

// GateService is the per-(user, box) rate limiter. State lives in the
// database; a sharded TTL cache short-circuits cooldown rejections without
// a read, swept periodically by the box scheduler.
type GateService struct {
	DB        *gorm.DB
	cooldowns *utils.TTLMap
}

func NewGateService(db *gorm.DB) *GateService {
	return &GateService{DB: db, cooldowns: utils.NewTTLMap()}
}

func gateCacheKey(userID, boxID string) string {
	return userID + "|" + boxID
}

// EvaluateGate decides whether a dig is allowed given the current state.
// One-time boxes (max digs = 1) have no cooldown concept at all; for every
// other box the limit check runs before the cooldown check, so an exhausted
// user always sees LIMIT regardless of elapsed time.
func EvaluateGate(state *models.DigGateState, box *models.Box, now time.Time) GateDecision {
	d := GateDecision{Allowed: true, MaxDigs: box.MaxDigsPerUser}
	if state != nil {
		d.DigCount = state.DigCount
	}

	if box.MaxDigsPerUser > 0 && d.DigCount >= box.MaxDigsPerUser {
		d.Allowed = false
		d.Reason = GateReasonLimit
		return d
	}

	if box.OneTime() {
		return d
	}

	if state != nil && state.LastDigAt != nil && box.CooldownHours > 0 {
		cooldown := time.Duration(box.CooldownHours) * time.Hour
		next := state.LastDigAt.Add(cooldown)
		if now.Before(next) {
			d.Allowed = false
			d.Reason = GateReasonCooldown
			d.RemainingCooldownMs = next.Sub(now).Milliseconds()
			d.NextAllowedAt = &next
		}
	}
	return d
}

// CheckGate loads the gate record for (user, box) and evaluates it.
// Read-only; a rejection has no side effects.
func (s *GateService) CheckGate(tx *gorm.DB, userID string, box *models.Box, now time.Time) (GateDecision, error) {
	// Fast path only for unlimited boxes: on a capped box a LIMIT rejection
	// must win over COOLDOWN, which needs the stored dig count.
	if exp, hit := s.cooldowns.Until(gateCacheKey(userID, box.ID)); hit && box.MaxDigsPerUser == 0 {
		next := exp
		return GateDecision{
			Allowed:             false,
			Reason:              GateReasonCooldown,
			MaxDigs:             box.MaxDigsPerUser,
			RemainingCooldownMs: next.Sub(now).Milliseconds(),
			NextAllowedAt:       &next,
		}, nil
	}

	var state models.DigGateState
	err := tx.Where("user_id = ? AND box_id = ?", userID, box.ID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return EvaluateGate(nil, box, now), nil
	}
	if err != nil {
		return GateDecision{}, err
	}
	return EvaluateGate(&state, box, now), nil
}

// ApplyGate increments the dig count and stamps the last dig time. Called
// only inside the transaction that wrote the reservation.
func (s *GateService) ApplyGate(tx *gorm.DB, userID string, box *models.Box, now time.Time) (*models.DigGateState, error) {
	var state models.DigGateState
	err := tx.Where("user_id = ? AND box_id = ?", userID, box.ID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = models.DigGateState{
			ID:     uuid.NewString(),
			UserID: userID,
			BoxID:  box.ID,
		}
	} else if err != nil {
		return nil, err
	}

	state.DigCount++
	t := now
	state.LastDigAt = &t
	if err := tx.Save(&state).Error; err != nil {
		return nil, fmt.Errorf("failed to apply dig gate: %w", err)
	}
	return &state, nil
}

// CacheCooldown primes the cooldown fast path for (user, box). Must be
// called only after the transaction that applied the gate has committed:
// a rolled-back reservation would otherwise leave a phantom cooldown in
// the cache with no dig recorded behind it.
func (s *GateService) CacheCooldown(userID string, box *models.Box, now time.Time) {
	if box == nil || box.OneTime() || box.CooldownHours <= 0 {
		return
	}
	s.cooldowns.Set(gateCacheKey(userID, box.ID),
		now.Add(time.Duration(box.CooldownHours)*time.Hour))
}

// ResetGate clears the gate record for (user, box). Administrative only.
func (s *GateService) ResetGate(userID, boxID string) error {
	s.cooldowns.Delete(gateCacheKey(userID, boxID))
	return s.DB.Where("user_id = ? AND box_id = ?", userID, boxID).
		Delete(&models.DigGateState{}).Error
}

// SweepCooldownCache drops expired cooldown cache entries.
func (s *GateService) SweepCooldownCache() {
	if n := s.cooldowns.Sweep(); n > 0 {
		log.Printf("[GATE] 🧹 Swept %d expired cooldown cache entries", n)
	}
}
