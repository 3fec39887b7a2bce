package services_test

import (
	"context"
	"testing"
	"time"

	"web3-rewards-backend/models"
	"web3-rewards-backend/services"
)

func TestPredictionOutcome(t *testing.T) {
	tests := []struct {
		name       string
		direction  string
		entryPrice float64
		exitPrice  float64
		want       models.PredictionStatus
	}{
		{"up wins on +6%", models.DirectionUp, 50000, 53000, models.PredictionStatusWon},
		{"up loses on +2%", models.DirectionUp, 50000, 51000, models.PredictionStatusLost},
		{"up wins on exactly +5%", models.DirectionUp, 50000, 52500, models.PredictionStatusWon},
		{"up loses on -6%", models.DirectionUp, 50000, 47000, models.PredictionStatusLost},
		{"down wins on -6%", models.DirectionDown, 50000, 47000, models.PredictionStatusWon},
		{"down wins on exactly -5%", models.DirectionDown, 50000, 47500, models.PredictionStatusWon},
		{"down loses on -2%", models.DirectionDown, 50000, 49000, models.PredictionStatusLost},
		{"down loses on +6%", models.DirectionDown, 50000, 53000, models.PredictionStatusLost},
		{"flat loses both ways", models.DirectionUp, 50000, 50000, models.PredictionStatusLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := services.PredictionOutcome(tt.direction, tt.entryPrice, tt.exitPrice)
			if got != tt.want {
				t.Errorf("PredictionOutcome(%s, %v, %v) = %s, want %s",
					tt.direction, tt.entryPrice, tt.exitPrice, got, tt.want)
			}
		})
	}
}

func TestStartSchedulerStopsOnCancel(t *testing.T) {
	// Cancelling the process context must tear the scheduler down without
	// firing a settlement pass (the nil dependencies would panic if one
	// ran).
	s := services.NewSettlementService(nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.StartScheduler(ctx)
	cancel()
	time.Sleep(100 * time.Millisecond)
}

func TestPayoutFor(t *testing.T) {
	tests := []struct {
		stake      int64
		multiplier float64
		want       int64
	}{
		{100, 2, 200},
		{100, 1.5, 150},
		{50, 3, 150},
	}
	for _, tt := range tests {
		if got := services.PayoutFor(tt.stake, tt.multiplier); got != tt.want {
			t.Errorf("PayoutFor(%d, %v) = %d, want %d", tt.stake, tt.multiplier, got, tt.want)
		}
	}
}
