// services/sybil.go
package services

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"web3-rewards-backend/models"
	"web3-rewards-backend/workers"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrIPBound and ErrMaxDevices are distinguishable from generic auth
	// failures so the client can show a tailored message.
	ErrIPBound          = errors.New("ip already used by another wallet")
	ErrMaxDevices       = errors.New("max devices reached")
	ErrLowActivity      = errors.New("wallet transaction history too low")
	ErrChainUnavailable = errors.New("chain lookup unavailable")
)

// SybilService gates value-granting operations: an on-chain activity floor
// plus per-(IP, type) wallet bindings.
type SybilService struct {
	DB    *gorm.DB
	Chain *workers.ChainClient

	MinTxCount uint64
	// FailOpen keeps the tx-history check advisory when the RPC node is
	// down, trading strict sybil-resistance for availability. Operators
	// flip SYBIL_FAIL_OPEN=false to fail closed instead.
	FailOpen bool
}

func NewSybilService(db *gorm.DB, chain *workers.ChainClient) *SybilService {
	minTx := uint64(5)
	if v := os.Getenv("MIN_TX_COUNT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			minTx = n
		}
	}
	failOpen := true
	if v := os.Getenv("SYBIL_FAIL_OPEN"); v != "" {
		failOpen = v != "false" && v != "0"
	}
	return &SybilService{DB: db, Chain: chain, MinTxCount: minTx, FailOpen: failOpen}
}

// CheckTransactionHistory requires the wallet to have sent at least
// MinTxCount on-chain transactions.
func (s *SybilService) CheckTransactionHistory(ctx context.Context, wallet string) error {
	count, err := s.Chain.TransactionCount(ctx, wallet)
	if err != nil {
		if s.FailOpen {
			log.Printf("⚠️ [SYBIL] tx-count lookup failed for %s, failing open: %v", wallet, err)
			return nil
		}
		return ErrChainUnavailable
	}
	if count < s.MinTxCount {
		return ErrLowActivity
	}
	return nil
}

// CheckIPBinding enforces one wallet per (IP, type) and at most
// MaxBindingsPerWallet distinct IPs per wallet per type. It only checks —
// Bind is called separately, after the guarded operation succeeds, so a
// request that fails later validation never burns the IP.
func (s *SybilService) CheckIPBinding(bindingType, ip, wallet string) error {
	var binding models.IPBinding
	err := s.DB.First(&binding, "ip = ? AND binding_type = ?", ip, bindingType).Error
	switch {
	case err == nil:
		if binding.WalletAddress != wallet {
			return ErrIPBound
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		var count int64
		if err := s.DB.Model(&models.IPBinding{}).
			Where("wallet_address = ? AND binding_type = ?", wallet, bindingType).
			Count(&count).Error; err != nil {
			return err
		}
		if count >= models.MaxBindingsPerWallet {
			return ErrMaxDevices
		}
		return nil
	default:
		return err
	}
}

// Bind records (IP, type) → wallet after a guarded operation completes.
// An existing binding for the same wallet only gets its timestamp
// refreshed; a concurrent insert by another wallet wins via the composite
// primary key and is left untouched.
func (s *SybilService) Bind(bindingType, ip, wallet string) error {
	binding := models.IPBinding{
		IP:            ip,
		BindingType:   bindingType,
		WalletAddress: wallet,
		BoundAt:       time.Now().UTC(),
	}
	res := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&binding)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.DB.Model(&models.IPBinding{}).
			Where("ip = ? AND binding_type = ? AND wallet_address = ?", ip, bindingType, wallet).
			Update("bound_at", binding.BoundAt).Error
	}
	return nil
}
