// handlers/predictions.go
package handlers

import (
	"web3-rewards-backend/middleware"
	"web3-rewards-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPredictionRoutes(app *fiber.App, predictionService *services.PredictionService) {
	app.Post("/predictions/bet", middleware.WalletHeaderMiddleware(), predictionService.PlaceBet)
}
