package models

import "time"

// Direction is the directional hint under evaluation.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// ParseDirection maps wire values (LONG/SHORT/BUY/SELL) to a Direction.
// Unknown values default to Long.
func ParseDirection(s string) Direction {
	switch s {
	case "SHORT", "SELL", "short", "sell":
		return Short
	default:
		return Long
	}
}

// Candle represents an OHLCV bar.
type Candle struct {
	Bucket time.Time `json:"bucket"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// MarketSnapshot is the immutable input of one evaluation pass.
// Prices and Volumes are ordered oldest to newest.
type MarketSnapshot struct {
	Symbol        string    `json:"symbol"`
	CurrentPrice  float64   `json:"current_price"`
	Prices        []float64 `json:"prices"`
	Volumes       []float64 `json:"volumes"`
	CurrentCandle Candle    `json:"current_candle"`
	Direction     Direction `json:"direction"`
	Timestamp     time.Time `json:"timestamp"`
}

// SnapshotFromCandles builds a snapshot from an ascending candle window.
// The last candle is the current candle.
func SnapshotFromCandles(symbol string, candles []Candle, dir Direction) MarketSnapshot {
	s := MarketSnapshot{
		Symbol:    symbol,
		Direction: dir,
		Prices:    make([]float64, 0, len(candles)),
		Volumes:   make([]float64, 0, len(candles)),
	}
	for _, c := range candles {
		s.Prices = append(s.Prices, c.Close)
		s.Volumes = append(s.Volumes, c.Volume)
	}
	if n := len(candles); n > 0 {
		last := candles[n-1]
		s.CurrentCandle = last
		s.CurrentPrice = last.Close
		s.Timestamp = last.Bucket
	}
	return s
}

// Tick is one observed trade or quote for a symbol.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}
