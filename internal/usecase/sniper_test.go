package usecase

import (
	"math/rand"
	"testing"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/indicators"
)

func approved(dir models.Direction, confidence int) models.ConsensusResult {
	return models.ConsensusResult{Decision: models.Approve, Direction: dir, Confidence: confidence}
}

// zigzag rises overall while keeping RSI well below 70.
func zigzag(n int) []float64 {
	out := make([]float64, n)
	p := 1.1
	for i := range out {
		if i%2 == 0 {
			p += 0.0010
		} else {
			p -= 0.0008
		}
		out[i] = p
	}
	return out
}

func TestSniperGates(t *testing.T) {
	v := NewSniperValidator(DefaultSniperConfig(), nil)
	up := zigzag(40)
	down := make([]float64, len(up))
	for i, p := range up {
		down[len(up)-1-i] = p
	}
	steep := risingPrices(40, 1.1, 0.001)

	tests := []struct {
		name   string
		prices []float64
		cons   models.ConsensusResult
		safe   bool
		action models.Action
		reason string
	}{
		{"consensus rejected", up, models.ConsensusResult{Decision: models.Reject, Direction: models.Long, Confidence: 99}, false, models.Neutral, models.ReasonConsensusFailed},
		{"confidence at floor", up, approved(models.Long, 95), false, models.Neutral, models.ReasonLowConfidence},
		{"buy aligned", up, approved(models.Long, 96), true, models.Buy, ""},
		{"buy overbought", steep, approved(models.Long, 99), false, models.Neutral, models.ReasonRSIOverbought},
		{"buy below ema", down, approved(models.Long, 99), false, models.Neutral, models.ReasonPriceBelowEMA},
		{"sell aligned", down, approved(models.Short, 99), true, models.Sell, ""},
		{"sell above ema", up, approved(models.Short, 99), false, models.Neutral, models.ReasonPriceAboveEMA},
		{"no direction", up, approved("", 99), false, models.Neutral, models.ReasonInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := models.MarketSnapshot{Prices: tt.prices, CurrentPrice: tt.prices[len(tt.prices)-1]}
			d := v.Validate(snap, tt.cons)
			if d.Safe != tt.safe || d.Action != tt.action || d.Reason != tt.reason {
				t.Fatalf("decision = %+v, want safe=%v action=%s reason=%q", d, tt.safe, tt.action, tt.reason)
			}
			prefix := "SNIPER REJECTED:"
			if tt.safe {
				prefix = "SNIPER APPROVED:"
			}
			if len(d.Reasoning) < len(prefix) || d.Reasoning[:len(prefix)] != prefix {
				t.Fatalf("reasoning %q lacks prefix %q", d.Reasoning, prefix)
			}
		})
	}
}

func TestSniperNeverBuysAtOrBelowEMA(t *testing.T) {
	v := NewSniperValidator(DefaultSniperConfig(), nil)
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		prices := make([]float64, 10+r.Intn(50))
		p := 1 + r.Float64()
		for j := range prices {
			p += (r.Float64() - 0.5) * 0.01
			prices[j] = p
		}
		current := prices[len(prices)-1] + (r.Float64()-0.5)*0.02
		snap := models.MarketSnapshot{Prices: prices, CurrentPrice: current}
		ema := indicators.EMA(prices, 20)

		if d := v.Validate(snap, approved(models.Long, 99)); d.Action == models.Buy && current <= ema {
			t.Fatalf("BUY at price %.5f <= EMA20 %.5f", current, ema)
		}
		if d := v.Validate(snap, approved(models.Short, 99)); d.Action == models.Sell && current >= ema {
			t.Fatalf("SELL at price %.5f >= EMA20 %.5f", current, ema)
		}
	}
}
