// services/audit.go
package services

import (
	"log"

	"web3-rewards-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditService records every value-granting attempt for forensics. It is
// best-effort: a failed write logs and never fails the request it wraps.
type AuditService struct {
	DB *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{DB: db}
}

func (s *AuditService) Record(wallet, ip, action, outcome, detail string) {
	entry := models.AuditLog{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		IP:            ip,
		Action:        action,
		Outcome:       outcome,
		Detail:        detail,
	}
	if err := s.DB.Create(&entry).Error; err != nil {
		log.Printf("⚠️ [AUDIT] failed to record %s/%s for %s: %v", action, outcome, wallet, err)
	}
}
