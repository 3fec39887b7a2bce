// handlers/exchange.go
package handlers

import (
	"web3-rewards-backend/middleware"
	"web3-rewards-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupExchangeRoutes(app *fiber.App, exchangeService *services.ExchangeService) {
	// 🔐 Voucher issuance requires proof of wallet control.
	app.Post("/exchange/sign", middleware.SignatureAuthMiddleware(), exchangeService.Sign)

	// Confirm carries the wallet in the body; the on-chain transaction is
	// the proof here, so no signature headers are required.
	app.Post("/exchange/confirm", exchangeService.Confirm)
}
