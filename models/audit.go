package models

import "time"

// AuditLog keeps one row per value-granting attempt (claims, bets,
// exchanges), successful or not, for abuse forensics.
type AuditLog struct {
	ID            string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	WalletAddress string    `gorm:"size:64;index" json:"wallet_address"`
	IP            string    `gorm:"size:64;index" json:"ip"`
	Action        string    `gorm:"size:32;not null;index" json:"action"`
	Outcome       string    `gorm:"size:32;not null" json:"outcome"`
	Detail        string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}
