// handlers/box_routes.go
package handlers

import (
	"treasure-dig-system/middleware"
	"treasure-dig-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBoxRoutes(app *fiber.App, boxService *services.BoxService) {
	// 🔓 Public listing — no user context, but still behind gateway auth.
	app.Get("/boxes", boxService.ListHandler)
	app.Get("/boxes/:id", boxService.GetHandler)

	// 🔐 Sponsor/admin surface.
	admin := app.Group("/s/admin", middleware.UserContextMiddleware())

	admin.Post("/boxes", boxService.CreateHandler)
	admin.Post("/boxes/:id/token", boxService.BindTokenHandler)
	admin.Post("/boxes/:id/fund", boxService.FundHandler)
	admin.Post("/boxes/:id/configure", boxService.ConfigureHandler)
	admin.Post("/boxes/:id/status", boxService.StatusHandler)
	admin.Post("/boxes/:id/schedule", boxService.ScheduleHandler)
	admin.Post("/boxes/:id/adjust", boxService.AdjustHandler)
	admin.Post("/boxes/:id/gate-reset", boxService.ResetGateHandler)
}
