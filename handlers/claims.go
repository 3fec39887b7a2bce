// handlers/claims.go
package handlers

import (
	"web3-rewards-backend/middleware"
	"web3-rewards-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupClaimRoutes(app *fiber.App, claimService *services.ClaimService) {
	// 🔐 Value-granting routes require a fresh wallet signature.
	app.Post("/claim-points", middleware.SignatureAuthMiddleware(), claimService.ClaimSection)
	app.Post("/news/claim", middleware.SignatureAuthMiddleware(), claimService.ClaimNews)

	// Read-only status needs only the wallet header.
	app.Get("/claim-status", middleware.WalletHeaderMiddleware(), claimService.ClaimStatus)
}
