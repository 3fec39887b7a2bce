package models

import "time"

// Binding types for the sybil gate. Each value-granting surface binds IPs
// independently.
const (
	BindingTypeNews        = "news"
	BindingTypeTrading     = "trading"
	BindingTypeAirdrop     = "airdrop"
	BindingTypePredictions = "predictions"
)

// MaxBindingsPerWallet caps how many distinct IPs one wallet may bind per
// type ("different devices" allowance).
const MaxBindingsPerWallet = 5

// IPBinding maps (IP, binding type) to the first wallet that completed a
// guarded operation from that IP. The composite primary key makes "one
// wallet per IP per type" a storage-level guarantee; an IP is never rebound
// to a different wallet, only its timestamp refreshed.
type IPBinding struct {
	IP            string    `gorm:"primaryKey;size:64" json:"ip"`
	BindingType   string    `gorm:"primaryKey;size:16" json:"binding_type"`
	WalletAddress string    `gorm:"size:64;not null;index" json:"wallet_address"`
	BoundAt       time.Time `json:"bound_at"`
}

func (IPBinding) TableName() string { return "ip_bindings" }
