package services_test

import (
	"testing"

	"web3-rewards-backend/services"
)

func TestParseMarketKey(t *testing.T) {
	tests := []struct {
		in         string
		wantSymbol string
		wantDays   int
		wantErr    bool
	}{
		{"BTC-3d", "BTC", 3, false},
		{"btc-3d", "BTC", 3, false},
		{"ETH-1d", "ETH", 1, false},
		{"SOL-7d", "SOL", 7, false},
		{"BTC-2d", "", 0, true}, // no multiplier for 2d
		{"BTC-3", "", 0, true},
		{"BTC", "", 0, true},
		{"-3d", "", 0, true},
		{"", "", 0, true},
	}
	for _, tt := range tests {
		symbol, days, err := services.ParseMarketKey(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMarketKey(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && (symbol != tt.wantSymbol || days != tt.wantDays) {
			t.Errorf("ParseMarketKey(%q) = (%q, %d), want (%q, %d)",
				tt.in, symbol, days, tt.wantSymbol, tt.wantDays)
		}
	}
}

func TestDurationMultiplier(t *testing.T) {
	tests := []struct {
		days int
		want float64
	}{
		{1, 1.5},
		{3, 2},
		{7, 3},
	}
	for _, tt := range tests {
		if got := services.DurationMultiplier(tt.days); got != tt.want {
			t.Errorf("DurationMultiplier(%d) = %v, want %v", tt.days, got, tt.want)
		}
	}
}
