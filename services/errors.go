package services

import "errors"

// Typed policy/not-found errors. Handlers map these onto stable HTTP error
// codes; everything else surfaces as a transient server error.
var (
	ErrUserNotFound           = errors.New("user_not_found")
	ErrBoxNotFound            = errors.New("box_not_found")
	ErrBoxNotDiggable         = errors.New("box_not_active")
	ErrGateLimit              = errors.New("dig_limit_reached")
	ErrGateCooldown           = errors.New("dig_cooldown_active")
	ErrInsufficientBoxBalance = errors.New("insufficient_box_balance")
	ErrAmountExceedsAvailable = errors.New("amount_exceeds_available")
	ErrClaimNotFound          = errors.New("claim_not_found")
	ErrClaimAlreadyWithdrawn  = errors.New("claim_already_withdrawn")
	ErrDigIDConflict          = errors.New("dig_id_conflict")
	ErrStageViolation         = errors.New("box_stage_violation")
	ErrBoxEnded               = errors.New("box_ended")
)
