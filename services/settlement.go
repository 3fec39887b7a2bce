// services/settlement.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"web3-rewards-backend/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// WinThresholdPct is the minimum absolute price movement, in percent, for
// a bet to win. Movement exactly at the threshold counts as a win.
const WinThresholdPct = 5.0

const priceFetchAttempts = 3

// PredictionOutcome decides won/lost from entry and exit prices. Win iff
// the move is at least WinThresholdPct in the predicted direction.
func PredictionOutcome(direction string, entryPrice, exitPrice float64) models.PredictionStatus {
	changePct := (exitPrice - entryPrice) / entryPrice * 100
	switch direction {
	case models.DirectionUp:
		if changePct >= WinThresholdPct {
			return models.PredictionStatusWon
		}
	case models.DirectionDown:
		if changePct <= -WinThresholdPct {
			return models.PredictionStatusWon
		}
	}
	return models.PredictionStatusLost
}

// PayoutFor computes the winning payout.
func PayoutFor(stake int64, multiplier float64) int64 {
	return int64(float64(stake) * multiplier)
}

// SettlementService resolves pending predictions whose window has elapsed.
type SettlementService struct {
	DB     *gorm.DB
	Ledger *LedgerService
	Prices *PriceFeedClient
}

func NewSettlementService(db *gorm.DB, ledger *LedgerService, prices *PriceFeedClient) *SettlementService {
	return &SettlementService{DB: db, Ledger: ledger, Prices: prices}
}

// StartScheduler runs a settlement pass every 5 minutes, plus once shortly
// after startup to catch bets that came due while the process was down.
func (s *SettlementService) StartScheduler(ctx context.Context) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			if err := s.SettleDue(ctx); err != nil {
				log.Printf("[Settlement] pass aborted: %v", err)
			}
		}),
	)

	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			log.Printf("[Settlement] scheduler shutdown error: %v", err)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(15 * time.Second):
			if err := s.SettleDue(ctx); err != nil {
				log.Printf("[Settlement] startup pass aborted: %v", err)
			}
		}
	}()
}

// SettleDue settles every pending prediction past its settlement date. If
// prices cannot be fetched the whole pass aborts — bets are never settled
// against stale or default prices. A failure on one prediction does not
// stop the others in the pass.
func (s *SettlementService) SettleDue(ctx context.Context) error {
	var due []models.Prediction
	if err := s.DB.Where("status = ? AND settlement_at <= ?",
		models.PredictionStatusPending, time.Now().UTC()).
		Find(&due).Error; err != nil {
		return fmt.Errorf("failed to list due predictions: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var symbols []string
	for _, p := range due {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}

	prices, err := s.Prices.GetPricesWithRetry(ctx, symbols, priceFetchAttempts)
	if err != nil {
		return fmt.Errorf("price fetch failed, deferring %d predictions: %w", len(due), err)
	}

	settled := 0
	for _, p := range due {
		if err := s.settleOne(p, prices[p.Symbol]); err != nil {
			log.Printf("[Settlement] failed to settle %s: %v", p.ID, err)
			continue
		}
		settled++
	}
	log.Printf("✅ Settled %d/%d due predictions", settled, len(due))
	return nil
}

// settleOne transitions one prediction pending→won/lost. The status flip
// is guarded on status=pending so two instances cannot both settle it, and
// it shares a transaction with the payout credit: if the credit fails the
// flip rolls back and the prediction stays pending for the next pass.
func (s *SettlementService) settleOne(p models.Prediction, exitPrice float64) error {
	outcome := PredictionOutcome(p.Direction, p.EntryPrice, exitPrice)

	return s.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":     outcome,
			"exit_price": exitPrice,
		}
		var payout int64
		if outcome == models.PredictionStatusWon {
			payout = PayoutFor(p.Stake, p.Multiplier)
			updates["payout"] = payout
		}

		res := tx.Model(&models.Prediction{}).
			Where("id = ? AND status = ?", p.ID, models.PredictionStatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already settled by a concurrent pass.
			return nil
		}

		if outcome == models.PredictionStatusWon {
			var user models.User
			if err := tx.First(&user, "username = ?", p.WalletAddress).Error; err != nil {
				return fmt.Errorf("winner %s has no user row: %w", p.WalletAddress, err)
			}
			if err := s.Ledger.Credit(tx, user.ID, payout); err != nil {
				return err
			}
		}
		return nil
	})
}
