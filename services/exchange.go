// services/exchange.go
package services

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"web3-rewards-backend/models"
	"web3-rewards-backend/utils"
	"web3-rewards-backend/workers"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Exchange limits per voucher.
const (
	MinExchangePoints = 300
	MaxExchangePoints = 5000
	VoucherTTL        = time.Hour
)

var ErrTxAlreadyProcessed = errors.New("transaction already processed")

// ExchangeService issues backend-signed vouchers the on-chain contract
// accepts to release tokens, and debits points only after independently
// verifying the resulting transaction. A voucher that is never redeemed
// on-chain costs the user nothing.
type ExchangeService struct {
	DB     *gorm.DB
	Users  *UserService
	Ledger *LedgerService
	Chain  *workers.ChainClient
	Audit  *AuditService

	signerKey *ecdsa.PrivateKey
	contract  string
}

func NewExchangeService(db *gorm.DB, users *UserService, ledger *LedgerService, chain *workers.ChainClient, audit *AuditService) *ExchangeService {
	s := &ExchangeService{
		DB:       db,
		Users:    users,
		Ledger:   ledger,
		Chain:    chain,
		Audit:    audit,
		contract: utils.NormalizeAddress(os.Getenv("EXCHANGE_CONTRACT")),
	}
	if raw := os.Getenv("EXCHANGE_SIGNER_KEY"); raw != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			log.Printf("❌ EXCHANGE_SIGNER_KEY is not a valid private key: %v", err)
		} else {
			s.signerKey = key
		}
	} else {
		log.Println("⚠️ EXCHANGE_SIGNER_KEY not set — /exchange/sign will return 500")
	}
	if s.contract == "" {
		log.Println("⚠️ EXCHANGE_CONTRACT not set — /exchange/confirm will reject everything")
	}
	return s
}

// GenerateNonce produces a bytes32 nonce unique enough to never collide in
// the contract's replay-tracking window: epoch millis hashed together with
// 16 random bytes.
func GenerateNonce() string {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint64(buf[:8], uint64(time.Now().UnixMilli()))
	if _, err := rand.Read(buf[8:]); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return "0x" + hex.EncodeToString(crypto.Keccak256(buf))
}

// VoucherDigest computes the Ethereum-signed-message digest over the
// abi-packed (address, uint256 points, bytes32 nonce, uint256 expiration)
// tuple — exactly the layout the on-chain verifier reconstructs.
func VoucherDigest(wallet string, points int64, nonce string, expiration int64) common.Hash {
	packed := crypto.Keccak256Hash(
		common.HexToAddress(wallet).Bytes(),
		math.U256Bytes(big.NewInt(points)),
		common.HexToHash(nonce).Bytes(),
		math.U256Bytes(big.NewInt(expiration)),
	)
	return crypto.Keccak256Hash([]byte("\x19Ethereum Signed Message:\n32"), packed.Bytes())
}

// SignVoucher signs the voucher digest, returning a 65-byte hex signature
// with V in 27/28 form as contracts expect.
func SignVoucher(key *ecdsa.PrivateKey, wallet string, points int64, nonce string, expiration int64) (string, error) {
	sig, err := crypto.Sign(VoucherDigest(wallet, points, nonce, expiration).Bytes(), key)
	if err != nil {
		return "", err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// Sign handles POST /exchange/sign — phase A. Authorizes only; no balance
// mutation happens here.
func (s *ExchangeService) Sign(c *fiber.Ctx) error {
	wallet := c.Locals("wallet").(string)

	var req struct {
		TokenID int   `json:"tokenId"`
		Points  int64 `json:"points"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Points < MinExchangePoints || req.Points > MaxExchangePoints {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("points must be between %d and %d", MinExchangePoints, MaxExchangePoints),
		})
	}
	if s.signerKey == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "exchange signer misconfigured"})
	}

	user, err := s.Users.EnsureUser(s.DB, wallet)
	if err != nil {
		log.Printf("DB Error on exchange sign for %s: %v", wallet, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if user.Balance < req.Points {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInsufficientPoints.Error()})
	}

	// Best-effort once-a-day check. The contract enforces this too, so a
	// failed lookup only logs and never blocks.
	var todayCount int64
	if err := s.DB.Model(&models.Exchange{}).
		Where("wallet_address = ? AND confirmed_at >= ?", wallet, utcDayStart(time.Now())).
		Count(&todayCount).Error; err != nil {
		log.Printf("⚠️ [EXCHANGE] day-check failed for %s, continuing: %v", wallet, err)
	} else if todayCount > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "already exchanged today"})
	}

	nonce := GenerateNonce()
	expiration := time.Now().Add(VoucherTTL).Unix()
	signature, err := SignVoucher(s.signerKey, wallet, req.Points, nonce, expiration)
	if err != nil {
		log.Printf("❌ [EXCHANGE] signing failed for %s: %v", wallet, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to sign voucher"})
	}

	s.Audit.Record(wallet, c.IP(), "exchange-sign", "issued",
		fmt.Sprintf("token=%d points=%d nonce=%s", req.TokenID, req.Points, nonce))

	return c.JSON(fiber.Map{
		"nonce":      nonce,
		"expiration": expiration,
		"signature":  signature,
	})
}

// Confirm handles POST /exchange/confirm — phase B, the only place
// exchange points are actually spent. Every claim the client makes about
// the transaction is re-verified on-chain.
func (s *ExchangeService) Confirm(c *fiber.Ctx) error {
	var req struct {
		WalletAddress string `json:"walletAddress"`
		Points        int64  `json:"points"`
		TxHash        string `json:"txHash"`
		TokenID       int    `json:"tokenId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if !utils.IsHexAddress(req.WalletAddress) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid address format"})
	}
	if req.Points <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid points"})
	}
	if len(req.TxHash) != 66 || !strings.HasPrefix(req.TxHash, "0x") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid tx hash"})
	}
	if s.contract == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "exchange contract misconfigured"})
	}

	wallet := utils.NormalizeAddress(req.WalletAddress)
	txHash := strings.ToLower(req.TxHash)

	if err := s.Chain.VerifyExchangeTx(c.Context(), txHash, wallet, s.contract); err != nil {
		s.Audit.Record(wallet, c.IP(), "exchange-confirm", "rejected", err.Error())
		switch {
		case errors.Is(err, workers.ErrTxNotFound),
			errors.Is(err, workers.ErrTxFailed),
			errors.Is(err, workers.ErrTxWrongTo),
			errors.Is(err, workers.ErrTxWrongFrom),
			errors.Is(err, workers.ErrTxTooOld):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		default:
			log.Printf("❌ [EXCHANGE] verification error for %s: %v", txHash, err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "chain verification unavailable"})
		}
	}

	var newBalance int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := s.Users.EnsureUser(tx, wallet)
		if err != nil {
			return err
		}

		record := models.Exchange{
			ID:            uuid.NewString(),
			WalletAddress: wallet,
			TokenID:       req.TokenID,
			Points:        req.Points,
			TxHash:        txHash,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTxAlreadyProcessed
		}

		if err := s.Ledger.Debit(tx, user.ID, req.Points); err != nil {
			return err
		}
		newBalance, err = s.Ledger.Balance(tx, user.ID)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTxAlreadyProcessed):
			s.Audit.Record(wallet, c.IP(), "exchange-confirm", "replay", txHash)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrTxAlreadyProcessed.Error()})
		case errors.Is(err, ErrInsufficientPoints):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInsufficientPoints.Error()})
		default:
			log.Printf("DB Error confirming exchange %s: %v", txHash, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to confirm exchange"})
		}
	}

	s.Audit.Record(wallet, c.IP(), "exchange-confirm", "debited",
		fmt.Sprintf("points=%d tx=%s", req.Points, txHash))

	return c.JSON(fiber.Map{"newBalance": newBalance})
}
