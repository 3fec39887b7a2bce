// services/ledger.go
package services

import (
	"errors"
	"fmt"

	"web3-rewards-backend/models"

	"gorm.io/gorm"
)

var ErrInsufficientPoints = errors.New("insufficient points")

// LedgerService is the single funnel for point balance mutations. Every
// grant and debit is an atomic SQL arithmetic update with the non-negative
// floor in the WHERE clause, so concurrent claims, bets and settlement
// credits for the same user can interleave in any order without losing an
// update or driving the balance below zero — including across multiple
// server instances.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// Credit adds delta points to the user's balance. delta must be positive.
func (s *LedgerService) Credit(tx *gorm.DB, userID string, delta int64) error {
	if delta <= 0 {
		return fmt.Errorf("credit delta must be positive, got %d", delta)
	}
	res := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("credit: user %s not found", userID)
	}
	return nil
}

// Debit subtracts delta points, refusing to go below zero. delta must be
// positive. Returns ErrInsufficientPoints when the guard blocks the write.
func (s *LedgerService) Debit(tx *gorm.DB, userID string, delta int64) error {
	if delta <= 0 {
		return fmt.Errorf("debit delta must be positive, got %d", delta)
	}
	res := tx.Model(&models.User{}).
		Where("id = ? AND balance >= ?", userID, delta).
		Update("balance", gorm.Expr("balance - ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientPoints
	}
	return nil
}

// Balance reads the user's current balance inside tx.
func (s *LedgerService) Balance(tx *gorm.DB, userID string) (int64, error) {
	var user models.User
	if err := tx.Select("balance").First(&user, "id = ?", userID).Error; err != nil {
		return 0, err
	}
	return user.Balance, nil
}
