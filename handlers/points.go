// handlers/points.go
package handlers

import (
	"web3-rewards-backend/middleware"
	"web3-rewards-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPointsRoutes(app *fiber.App, userService *services.UserService) {
	app.Get("/points/:address", userService.GetPoints)

	// 🔐 Out-of-band grants, guarded by the shared admin secret.
	app.Post("/admin/grant", middleware.AdminAuthMiddleware(), userService.AdminGrant)
}
