// Package indicators holds the pure price math shared by the agents and the
// sniper validator. Every function degrades to a neutral value on short input.
package indicators

import (
	"math"
	"strings"
)

const (
	// NeutralRSI is returned when there is not enough history.
	NeutralRSI = 50.0
	// DojiEpsilon is the body size below which the candle range is used as divisor.
	DojiEpsilon = 0.0001
)

// RSI computes a simple-average RSI over the last period changes.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return NeutralRSI
	}
	var gains, losses float64
	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		if avgGain == 0 {
			return NeutralRSI
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// EMA seeds with the SMA of the first period prices. Short input yields the
// last price, empty input yields 0.
func EMA(prices []float64, period int) float64 {
	n := len(prices)
	if n == 0 {
		return 0
	}
	if period <= 0 || n < period {
		return prices[n-1]
	}
	k := 2.0 / float64(period+1)
	ema := Mean(prices[:period])
	for _, p := range prices[period:] {
		ema = p*k + ema*(1-k)
	}
	return ema
}

// WickRatio is (upper wick + lower wick) / body. Near a doji the candle range
// is used instead; a zero range yields 0.
func WickRatio(open, high, low, close float64) float64 {
	body := math.Abs(close - open)
	upper := high - math.Max(open, close)
	lower := math.Min(open, close) - low
	wick := upper + lower
	if body < DojiEpsilon {
		rng := high - low
		if rng <= 0 {
			return 0
		}
		return wick / rng
	}
	return wick / body
}

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev is the population standard deviation.
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	var sq float64
	for _, x := range xs {
		d := x - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}

// Last returns the trailing n values (or all of xs when shorter).
func Last(xs []float64, n int) []float64 {
	if n <= 0 || len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// VolumeRatio compares the latest volume with the average of the trailing
// window. ok is false with fewer than two volumes or a zero average.
func VolumeRatio(volumes []float64, window int) (ratio float64, ok bool) {
	if len(volumes) < 2 {
		return 0, false
	}
	avg := Mean(Last(volumes, window))
	if avg <= 0 {
		return 0, false
	}
	return volumes[len(volumes)-1] / avg, true
}

// PipSize returns the price increment of one pip for symbol.
func PipSize(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(s, "XAU"), strings.Contains(s, "GOLD"):
		return 0.1
	case strings.Contains(s, "JPY"):
		return 0.01
	default:
		return 0.0001
	}
}

// Pips converts a signed price move into pips rounded to one decimal.
func Pips(symbol string, from, to float64) float64 {
	p := (to - from) / PipSize(symbol)
	return math.Round(p*10) / 10
}
