// handlers/dig_routes.go
package handlers

import (
	"treasure-dig-system/middleware"
	"treasure-dig-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupDigRoutes(app *fiber.App, digService *services.DigService) {
	// 🔐 Secured routes — require user context from the gateway.
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Post("/dig/gate-check", digService.GateCheckHandler)
	secured.Post("/dig/reserve", digService.ReserveHandler)
	secured.Post("/dig/execute", digService.ExecuteHandler)
}
