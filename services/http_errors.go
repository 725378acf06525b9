// services/http_errors.go
package services

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

// respondServiceError maps typed service errors onto stable HTTP error
// codes. Policy errors are expected user outcomes, not faults; anything
// unrecognized is a transient server error safe to retry with the same
// idempotency token.
func respondServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrBoxNotFound),
		errors.Is(err, ErrClaimNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": rootCode(err)})
	case errors.Is(err, ErrBoxNotDiggable),
		errors.Is(err, ErrBoxEnded),
		errors.Is(err, ErrStageViolation),
		errors.Is(err, ErrGateLimit),
		errors.Is(err, ErrGateCooldown),
		errors.Is(err, ErrInsufficientBoxBalance),
		errors.Is(err, ErrAmountExceedsAvailable),
		errors.Is(err, ErrClaimAlreadyWithdrawn),
		errors.Is(err, ErrDigIDConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": rootCode(err),
			"cause": err.Error(),
		})
	default:
		log.Printf("❌ [DIG_ENGINE] internal error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}
}

// rootCode unwraps to the sentinel so wrapped detail never leaks into the
// stable error code.
func rootCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
