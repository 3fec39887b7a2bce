package models

import "time"

// Exchange records a confirmed on-chain points-for-tokens redemption. Rows
// are created only at confirm time; the signed voucher itself is ephemeral
// and never persisted. The unique index on TxHash is the replay fence — a
// second confirm against the same transaction conflicts instead of
// double-debiting.
type Exchange struct {
	ID            string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	WalletAddress string    `gorm:"size:64;not null;index" json:"wallet_address"`
	TokenID       int       `gorm:"not null" json:"token_id"`
	Points        int64     `gorm:"not null" json:"points"`
	TxHash        string    `gorm:"size:80;not null;uniqueIndex" json:"tx_hash"`
	ConfirmedAt   time.Time `json:"confirmed_at" gorm:"autoCreateTime"`
}
