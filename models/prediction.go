package models

import "time"

// PredictionStatus is the bet lifecycle state. Transitions pending→won or
// pending→lost exactly once, driven by the settlement pass.
type PredictionStatus string

const (
	PredictionStatusPending PredictionStatus = "pending"
	PredictionStatusWon     PredictionStatus = "won"
	PredictionStatusLost    PredictionStatus = "lost"
)

// Directions a bet can take.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Prediction is a price-direction bet. The stake is debited at placement;
// payout (stake × multiplier) is credited only on a win, and the row is
// marked settled only after the credit lands.
type Prediction struct {
	ID            string           `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	WalletAddress string           `gorm:"size:64;not null;index" json:"wallet_address"`
	Symbol        string           `gorm:"size:16;not null" json:"symbol"`
	DurationDays  int              `gorm:"not null" json:"duration_days"`
	Direction     string           `gorm:"size:8;not null" json:"direction"`
	Stake         int64            `gorm:"not null" json:"stake"`
	EntryPrice    float64          `gorm:"not null" json:"entry_price"`
	ExitPrice     *float64         `json:"exit_price,omitempty"`
	Multiplier    float64          `gorm:"not null" json:"multiplier"`
	Status        PredictionStatus `gorm:"size:12;not null;default:'pending';index" json:"status"`
	SettlementAt  time.Time        `gorm:"not null;index" json:"settlement_at"`
	Payout        *int64           `json:"payout,omitempty"`
	CreatedAt     time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}
