package models

import "time"

// User is keyed by the normalized wallet address (stored in Username).
// Created lazily with a zero balance on the first claim, bet or profile
// fetch. Balance is non-negative both via the check constraint and via the
// ledger's guarded updates.
type User struct {
	ID          string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Username    string     `gorm:"uniqueIndex;size:64;not null" json:"username"` // normalized wallet address
	Balance     int64      `gorm:"not null;default:0;check:balance >= 0" json:"balance"`
	ClaimsToday int        `gorm:"not null;default:0" json:"claims_today"` // legacy daily counter
	LastClaimAt *time.Time `json:"last_claim_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
