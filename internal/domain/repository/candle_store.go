package repository

import (
	"context"

	"SignalDesk/internal/domain/models"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
)

// CandleStore provides read-only access to the candles the scanner evaluates.
type CandleStore interface {
	LatestCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}
