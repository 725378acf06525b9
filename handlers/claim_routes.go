// handlers/claim_routes.go
package handlers

import (
	"treasure-dig-system/middleware"
	"treasure-dig-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupClaimRoutes(app *fiber.App, claimService *services.ClaimService) {
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Get("/claims", claimService.ListHandler)
	secured.Get("/claims/groups", claimService.GroupsHandler)
	secured.Post("/claims/withdraw", claimService.WithdrawHandler)
}
