package indicators

import (
	"math"
	"testing"
)

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestRSINeutralOnShortInput(t *testing.T) {
	for n := 0; n <= 14; n++ {
		if got := RSI(flat(n, 1.1), 14); got != NeutralRSI {
			t.Fatalf("RSI(len=%d) = %v, want %v", n, got, NeutralRSI)
		}
	}
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"flat", flat(30, 1.05), 50},
		{"only gains", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, 100},
		{"only losses", []float64{15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, 0},
		{"balanced", []float64{1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RSI(tt.prices, 14); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("RSI = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEMA(t *testing.T) {
	if got := EMA(nil, 12); got != 0 {
		t.Fatalf("EMA(nil) = %v, want 0", got)
	}
	if got := EMA([]float64{1, 2, 3}, 12); got != 3 {
		t.Fatalf("EMA short = %v, want last price 3", got)
	}
	if got := EMA(flat(40, 1.2), 26); math.Abs(got-1.2) > 1e-12 {
		t.Fatalf("EMA flat = %v, want 1.2", got)
	}
	// seed SMA(1,2,3)=2, then 4*0.5 + 2*0.5 = 3
	if got := EMA([]float64{1, 2, 3, 4}, 3); math.Abs(got-3) > 1e-12 {
		t.Fatalf("EMA = %v, want 3", got)
	}
}

func TestWickRatio(t *testing.T) {
	tests := []struct {
		name                   string
		open, high, low, close float64
		want                   float64
	}{
		{"fakeout candle", 1.0500, 1.0550, 1.0495, 1.0505, 10.0},
		{"no wicks", 1.0, 1.1, 1.0, 1.1, 0},
		{"doji uses range", 1.0, 1.002, 0.998, 1.0, 1.0},
		{"zero range", 1.0, 1.0, 1.0, 1.0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WickRatio(tt.open, tt.high, tt.low, tt.close)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Fatalf("WickRatio = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolumeRatio(t *testing.T) {
	if _, ok := VolumeRatio([]float64{10}, 20); ok {
		t.Fatalf("single volume should not be usable")
	}
	r, ok := VolumeRatio(flat(30, 100), 20)
	if !ok || r != 1 {
		t.Fatalf("flat ratio = %v ok=%v, want 1 true", r, ok)
	}
}

func TestPips(t *testing.T) {
	tests := []struct {
		symbol   string
		from, to float64
		want     float64
	}{
		{"EURUSD=X", 1.1000, 1.1012, 12},
		{"USDJPY=X", 150.00, 149.85, -15},
		{"XAUUSD", 2300.0, 2301.5, 15},
	}
	for _, tt := range tests {
		if got := Pips(tt.symbol, tt.from, tt.to); got != tt.want {
			t.Errorf("Pips(%s) = %v, want %v", tt.symbol, got, tt.want)
		}
	}
}

func TestStdDev(t *testing.T) {
	if got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}); got != 2 {
		t.Fatalf("StdDev = %v, want 2", got)
	}
}
