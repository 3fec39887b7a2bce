// services/claims.go
package services

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"web3-rewards-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAlreadyClaimed = errors.New("already claimed")
	ErrDailyLimit     = errors.New("daily article limit reached")
)

// ClaimService grants points for reading articles and for the daily
// section claims. Idempotency per (user, claim key) rides entirely on the
// composite unique index: the insert either lands together with the
// balance credit in one transaction, or neither does.
type ClaimService struct {
	DB     *gorm.DB
	Users  *UserService
	Ledger *LedgerService
	Sybil  *SybilService
	Audit  *AuditService

	NewsPoints    int64
	SectionPoints int64
	DailyArticles int64
}

func NewClaimService(db *gorm.DB, users *UserService, ledger *LedgerService, sybil *SybilService, audit *AuditService) *ClaimService {
	s := &ClaimService{
		DB:            db,
		Users:         users,
		Ledger:        ledger,
		Sybil:         sybil,
		Audit:         audit,
		NewsPoints:    10,
		SectionPoints: 35,
		DailyArticles: 3,
	}
	if v := os.Getenv("NEWS_CLAIM_POINTS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			s.NewsPoints = n
		}
	}
	if v := os.Getenv("SECTION_CLAIM_POINTS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			s.SectionPoints = n
		}
	}
	if v := os.Getenv("DAILY_ARTICLE_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			s.DailyArticles = n
		}
	}
	return s
}

func utcDayStart(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// grant runs the transactional half of a claim: lazy user creation,
// duplicate fence, daily article cap, claim insert and balance credit.
// Returns the new balance.
func (s *ClaimService) grant(wallet string, key models.ClaimKey, points int64) (int64, error) {
	var newBalance int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := s.Users.EnsureUser(tx, wallet)
		if err != nil {
			return err
		}

		// Duplicate beats every later precondition: re-claiming an
		// article must report "already claimed" even when the daily cap
		// is also exhausted. The unique-index conflict below stays as
		// the race fence for concurrent first claims.
		var existing models.Claim
		err = tx.Where("user_id = ? AND claim_key = ?", user.ID, key.String()).
			First(&existing).Error
		if err == nil {
			return ErrAlreadyClaimed
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if key.Kind == models.ClaimKindNews {
			var todayCount int64
			if err := tx.Model(&models.Claim{}).
				Where("user_id = ? AND kind = ? AND claimed_at >= ?",
					user.ID, models.ClaimKindNews, utcDayStart(time.Now())).
				Count(&todayCount).Error; err != nil {
				return err
			}
			if todayCount >= s.DailyArticles {
				return ErrDailyLimit
			}
		}

		claim := models.Claim{
			ID:       uuid.NewString(),
			UserID:   user.ID,
			ClaimKey: key.String(),
			Kind:     key.Kind,
			Points:   points,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&claim)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyClaimed
		}

		if err := s.Ledger.Credit(tx, user.ID, points); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"claims_today":  gorm.Expr("claims_today + 1"),
				"last_claim_at": now,
			}).Error; err != nil {
			return err
		}

		newBalance, err = s.Ledger.Balance(tx, user.ID)
		return err
	})
	return newBalance, err
}

// claimedSections reports which surfaces already have a same-UTC-day claim
// plus the points total for the day, so the client renders state without a
// second round trip.
func (s *ClaimService) claimedSections(userID string, now time.Time) (fiber.Map, int64, error) {
	day := utcDayStart(now)

	var claims []models.Claim
	if err := s.DB.Where("user_id = ? AND claimed_at >= ?", userID, day).
		Find(&claims).Error; err != nil {
		return nil, 0, err
	}

	sections := fiber.Map{"news": false, "trading": false, "airdrop": false}
	var total int64
	for _, claim := range claims {
		total += claim.Points
		if claim.Kind == models.ClaimKindNews {
			sections["news"] = true
			continue
		}
		if key, err := models.ParseClaimKey(claim.ClaimKey); err == nil {
			sections[key.Section] = true
		}
	}
	return sections, total, nil
}

// gate runs both sybil checks for the binding type implied by the claim
// key. A non-nil return means the claim must not proceed.
func (s *ClaimService) gate(c *fiber.Ctx, wallet string, key models.ClaimKey) error {
	if err := s.Sybil.CheckTransactionHistory(c.Context(), wallet); err != nil {
		return err
	}
	return s.Sybil.CheckIPBinding(key.BindingType(), c.IP(), wallet)
}

// respondGateError maps a sybil gate failure to its HTTP response.
func (s *ClaimService) respondGateError(c *fiber.Ctx, wallet string, err error) error {
	s.Audit.Record(wallet, c.IP(), "claim", "rejected", err.Error())
	switch {
	case errors.Is(err, ErrChainUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrLowActivity), errors.Is(err, ErrIPBound), errors.Is(err, ErrMaxDevices):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Printf("DB Error in sybil gate for %s: %v", wallet, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sybil check failed"})
	}
}

// ClaimSection handles POST /claim-points for the daily trading/airdrop
// claims.
func (s *ClaimService) ClaimSection(c *fiber.Ctx) error {
	wallet := c.Locals("wallet").(string)

	var req struct {
		Section string `json:"section"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Section != models.SectionTrading && req.Section != models.SectionAirdrop {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid section"})
	}

	key := models.SectionClaimKey(req.Section, time.Now())
	if err := s.gate(c, wallet, key); err != nil {
		return s.respondGateError(c, wallet, err)
	}

	newBalance, err := s.grant(wallet, key, s.SectionPoints)
	if err != nil {
		return s.claimError(c, wallet, key, err)
	}

	if err := s.Sybil.Bind(key.BindingType(), c.IP(), wallet); err != nil {
		log.Printf("⚠️ [CLAIM] failed to bind IP %s for %s: %v", c.IP(), wallet, err)
	}
	s.Audit.Record(wallet, c.IP(), "claim", "granted", key.String())

	user, err := s.Users.EnsureUser(s.DB, wallet)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	sections, total, err := s.claimedSections(user.ID, time.Now())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	return c.JSON(fiber.Map{
		"pointsEarned":    s.SectionPoints,
		"newBalance":      newBalance,
		"claimedSections": sections,
		"totalToday":      total,
	})
}

// ClaimNews handles POST /news/claim for per-article rewards.
func (s *ClaimService) ClaimNews(c *fiber.Ctx) error {
	wallet := c.Locals("wallet").(string)

	var req struct {
		ArticleID string `json:"articleId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.ArticleID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing article id"})
	}

	key := models.NewsClaimKey(req.ArticleID)
	if err := s.gate(c, wallet, key); err != nil {
		return s.respondGateError(c, wallet, err)
	}

	newBalance, err := s.grant(wallet, key, s.NewsPoints)
	if err != nil {
		return s.claimError(c, wallet, key, err)
	}

	if err := s.Sybil.Bind(key.BindingType(), c.IP(), wallet); err != nil {
		log.Printf("⚠️ [CLAIM] failed to bind IP %s for %s: %v", c.IP(), wallet, err)
	}
	s.Audit.Record(wallet, c.IP(), "claim", "granted", key.String())

	user, err := s.Users.EnsureUser(s.DB, wallet)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	var todayCount int64
	if err := s.DB.Model(&models.Claim{}).
		Where("user_id = ? AND kind = ? AND claimed_at >= ?",
			user.ID, models.ClaimKindNews, utcDayStart(time.Now())).
		Count(&todayCount).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	remaining := s.DailyArticles - todayCount
	if remaining < 0 {
		remaining = 0
	}

	return c.JSON(fiber.Map{
		"pointsEarned": s.NewsPoints,
		"newBalance":   newBalance,
		"claimedCount": todayCount,
		"remaining":    remaining,
	})
}

func (s *ClaimService) claimError(c *fiber.Ctx, wallet string, key models.ClaimKey, err error) error {
	switch {
	case errors.Is(err, ErrAlreadyClaimed):
		s.Audit.Record(wallet, c.IP(), "claim", "duplicate", key.String())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrAlreadyClaimed.Error()})
	case errors.Is(err, ErrDailyLimit):
		s.Audit.Record(wallet, c.IP(), "claim", "daily-limit", key.String())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrDailyLimit.Error()})
	default:
		log.Printf("DB Error granting claim %s for %s: %v", key.String(), wallet, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to grant claim"})
	}
}

// ClaimStatus handles GET /claim-status.
func (s *ClaimService) ClaimStatus(c *fiber.Ctx) error {
	wallet := c.Locals("wallet").(string)

	user, err := s.Users.EnsureUser(s.DB, wallet)
	if err != nil {
		log.Printf("DB Error fetching claim status for %s: %v", wallet, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	sections, total, err := s.claimedSections(user.ID, time.Now())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	return c.JSON(fiber.Map{
		"claimedSections": sections,
		"totalToday":      total,
	})
}
