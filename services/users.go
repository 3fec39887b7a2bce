// services/users.go
package services

import (
	"errors"
	"log"
	"time"

	"web3-rewards-backend/models"
	"web3-rewards-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserService struct {
	DB     *gorm.DB
	Ledger *LedgerService
	Audit  *AuditService
}

func NewUserService(db *gorm.DB, ledger *LedgerService, audit *AuditService) *UserService {
	return &UserService{DB: db, Ledger: ledger, Audit: audit}
}

// EnsureUser returns the user row for a normalized wallet address, creating
// it with a zero balance on first touch. The upsert (insert, ignore
// conflict, re-read) is race-safe: two concurrent first touches converge on
// the same row via the unique index on username.
func (s *UserService) EnsureUser(tx *gorm.DB, wallet string) (*models.User, error) {
	wallet = utils.NormalizeAddress(wallet)

	user := models.User{ID: uuid.NewString(), Username: wallet}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoNothing: true,
	}).Create(&user).Error; err != nil {
		return nil, err
	}

	var existing models.User
	if err := tx.First(&existing, "username = ?", wallet).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// GetPoints serves GET /points/:address — public profile totals.
func (s *UserService) GetPoints(c *fiber.Ctx) error {
	address := c.Params("address")
	if !utils.IsHexAddress(address) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid address format"})
	}

	user, err := s.EnsureUser(s.DB, address)
	if err != nil {
		log.Printf("DB Error fetching points for %s: %v", address, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch points"})
	}

	var articlesRead int64
	if err := s.DB.Model(&models.Claim{}).
		Where("user_id = ? AND kind = ?", user.ID, models.ClaimKindNews).
		Count(&articlesRead).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to count articles"})
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	var claimsToday int64
	if err := s.DB.Model(&models.Claim{}).
		Where("user_id = ? AND claimed_at >= ?", user.ID, dayStart).
		Count(&claimsToday).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to count claims"})
	}

	return c.JSON(fiber.Map{
		"totalPoints":  user.Balance,
		"articlesRead": articlesRead,
		"claimsToday":  claimsToday,
	})
}

// AdminGrant serves POST /admin/grant — out-of-band point adjustment
// guarded by the admin secret middleware.
func (s *UserService) AdminGrant(c *fiber.Ctx) error {
	var req struct {
		WalletAddress string `json:"walletAddress"`
		Points        int64  `json:"points"`
		Reason        string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if !utils.IsHexAddress(req.WalletAddress) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid address format"})
	}
	if req.Points == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "points must be non-zero"})
	}

	wallet := utils.NormalizeAddress(req.WalletAddress)
	var newBalance int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := s.EnsureUser(tx, wallet)
		if err != nil {
			return err
		}
		if req.Points > 0 {
			if err := s.Ledger.Credit(tx, user.ID, req.Points); err != nil {
				return err
			}
		} else {
			if err := s.Ledger.Debit(tx, user.ID, -req.Points); err != nil {
				return err
			}
		}
		newBalance, err = s.Ledger.Balance(tx, user.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientPoints) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInsufficientPoints.Error()})
		}
		log.Printf("DB Error on admin grant for %s: %v", wallet, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to apply grant"})
	}

	s.Audit.Record(wallet, c.IP(), "admin-grant", "granted", req.Reason)
	return c.JSON(fiber.Map{"newBalance": newBalance})
}
