// services/predictions.go
package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"web3-rewards-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Duration-derived payout multipliers. Longer windows pay more.
var durationMultipliers = map[int]float64{
	1: 1.5,
	3: 2,
	7: 3,
}

// ParseMarketKey splits a prediction id like "BTC-3d" into symbol and
// duration days. Only durations with a configured multiplier are valid.
func ParseMarketKey(id string) (symbol string, days int, err error) {
	idx := strings.LastIndex(id, "-")
	if idx <= 0 || !strings.HasSuffix(id, "d") {
		return "", 0, fmt.Errorf("invalid prediction id %q", id)
	}
	symbol = strings.ToUpper(id[:idx])
	days, err = strconv.Atoi(id[idx+1 : len(id)-1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid prediction id %q", id)
	}
	if _, ok := durationMultipliers[days]; !ok {
		return "", 0, fmt.Errorf("unsupported duration %dd", days)
	}
	return symbol, days, nil
}

// DurationMultiplier returns the payout multiplier for a supported window.
func DurationMultiplier(days int) float64 {
	return durationMultipliers[days]
}

// PredictionService places price-direction bets. The stake is debited the
// moment the bet lands; payout waits for the settlement pass.
type PredictionService struct {
	DB     *gorm.DB
	Users  *UserService
	Ledger *LedgerService
	Sybil  *SybilService
	Prices *PriceFeedClient
	Audit  *AuditService
}

func NewPredictionService(db *gorm.DB, users *UserService, ledger *LedgerService, sybil *SybilService, prices *PriceFeedClient, audit *AuditService) *PredictionService {
	return &PredictionService{DB: db, Users: users, Ledger: ledger, Sybil: sybil, Prices: prices, Audit: audit}
}

// PlaceBet handles POST /predictions/bet.
func (s *PredictionService) PlaceBet(c *fiber.Ctx) error {
	wallet := c.Locals("wallet").(string)

	var req struct {
		PredictionID string `json:"predictionId"`
		Direction    string `json:"direction"`
		Amount       int64  `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	symbol, days, err := ParseMarketKey(req.PredictionID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.Direction != models.DirectionUp && req.Direction != models.DirectionDown {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "direction must be up or down"})
	}
	if req.Amount <= 0 || req.Amount%2 != 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be a positive even number"})
	}

	if err := s.Sybil.CheckTransactionHistory(c.Context(), wallet); err != nil {
		s.Audit.Record(wallet, c.IP(), "bet", "rejected", err.Error())
		if errors.Is(err, ErrChainUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.Sybil.CheckIPBinding(models.BindingTypePredictions, c.IP(), wallet); err != nil {
		s.Audit.Record(wallet, c.IP(), "bet", "rejected", err.Error())
		if errors.Is(err, ErrIPBound) || errors.Is(err, ErrMaxDevices) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "binding check failed"})
	}

	// Entry price comes from the live feed or not at all.
	entryPrice, err := s.Prices.GetPrice(c.Context(), symbol)
	if err != nil {
		log.Printf("❌ [BET] price feed failed for %s: %v", symbol, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "price feed unavailable"})
	}

	prediction := models.Prediction{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		Symbol:        symbol,
		DurationDays:  days,
		Direction:     req.Direction,
		Stake:         req.Amount,
		EntryPrice:    entryPrice,
		Multiplier:    DurationMultiplier(days),
		Status:        models.PredictionStatusPending,
		SettlementAt:  time.Now().UTC().AddDate(0, 0, days),
	}

	var newBalance int64
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := s.Users.EnsureUser(tx, wallet)
		if err != nil {
			return err
		}
		if err := s.Ledger.Debit(tx, user.ID, req.Amount); err != nil {
			return err
		}
		if err := tx.Create(&prediction).Error; err != nil {
			return err
		}
		newBalance, err = s.Ledger.Balance(tx, user.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientPoints) {
			s.Audit.Record(wallet, c.IP(), "bet", "rejected", ErrInsufficientPoints.Error())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInsufficientPoints.Error()})
		}
		log.Printf("DB Error placing bet for %s: %v", wallet, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to place bet"})
	}

	if err := s.Sybil.Bind(models.BindingTypePredictions, c.IP(), wallet); err != nil {
		log.Printf("⚠️ [BET] failed to bind IP %s for %s: %v", c.IP(), wallet, err)
	}
	s.Audit.Record(wallet, c.IP(), "bet", "placed",
		fmt.Sprintf("%s %s stake=%d entry=%f", req.PredictionID, req.Direction, req.Amount, entryPrice))

	return c.JSON(fiber.Map{
		"prediction": prediction,
		"newBalance": newBalance,
	})
}
