package usecase

import (
	"fmt"
	"math"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
	"SignalDesk/internal/indicators"
)

type SniperConfig struct {
	MinConfidence int // confidence must be strictly above this
	EMAPeriod     int
	RSIPeriod     int
	RSIOverbought float64
	RSIOversold   float64
}

func DefaultSniperConfig() SniperConfig {
	return SniperConfig{
		MinConfidence: 95,
		EMAPeriod:     20,
		RSIPeriod:     14,
		RSIOverbought: 70,
		RSIOversold:   30,
	}
}

// SniperValidator is the last gate before a decision becomes a signal. It
// recomputes its own indicators from raw prices.
type SniperValidator struct {
	cfg     SniperConfig
	metrics repository.Metrics
}

func NewSniperValidator(cfg SniperConfig, metrics repository.Metrics) *SniperValidator {
	def := DefaultSniperConfig()
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.EMAPeriod <= 0 {
		cfg.EMAPeriod = def.EMAPeriod
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = def.RSIPeriod
	}
	if cfg.RSIOverbought <= 0 {
		cfg.RSIOverbought = def.RSIOverbought
	}
	if cfg.RSIOversold <= 0 {
		cfg.RSIOversold = def.RSIOversold
	}
	return &SniperValidator{cfg: cfg, metrics: metrics}
}

// Validate checks a consensus result against the snapshot it was made on.
func (s *SniperValidator) Validate(snap models.MarketSnapshot, cons models.ConsensusResult) models.SniperDecision {
	d := s.validate(snap, cons)
	if s.metrics != nil {
		reason := d.Reason
		if d.Safe {
			reason = "approved"
		}
		s.metrics.RecordSniper(reason)
	}
	return d
}

func (s *SniperValidator) validate(snap models.MarketSnapshot, cons models.ConsensusResult) models.SniperDecision {
	price := snap.CurrentPrice
	if price == 0 && len(snap.Prices) > 0 {
		price = snap.Prices[len(snap.Prices)-1]
	}
	ema := indicators.EMA(snap.Prices, s.cfg.EMAPeriod)
	rsi := indicators.RSI(snap.Prices, s.cfg.RSIPeriod)

	d := models.SniperDecision{
		Action:     models.Neutral,
		EMA20:      ema,
		RSI:        rsi,
		Confidence: cons.Confidence,
	}
	reject := func(reason, format string, args ...interface{}) models.SniperDecision {
		d.Reason = reason
		d.Reasoning = "SNIPER REJECTED: " + fmt.Sprintf(format, args...)
		return d
	}

	if cons.Decision != models.Approve {
		return reject(models.ReasonConsensusFailed, "consensus was %s", cons.Decision)
	}
	if cons.Confidence <= s.cfg.MinConfidence {
		return reject(models.ReasonLowConfidence, "confidence %d not above %d", cons.Confidence, s.cfg.MinConfidence)
	}
	if math.IsNaN(price) || price <= 0 || math.IsNaN(ema) {
		return reject(models.ReasonInvalidAction, "no usable price")
	}

	switch cons.Direction {
	case models.Long:
		if price <= ema {
			return reject(models.ReasonPriceBelowEMA, "price %.5f not above EMA20 %.5f", price, ema)
		}
		if rsi >= s.cfg.RSIOverbought {
			return reject(models.ReasonRSIOverbought, "RSI %.1f not below %.0f", rsi, s.cfg.RSIOverbought)
		}
		d.Safe, d.Action = true, models.Buy
		d.Reasoning = fmt.Sprintf("SNIPER APPROVED: BUY with price %.5f above EMA20 %.5f, RSI %.1f", price, ema, rsi)
		return d
	case models.Short:
		if price >= ema {
			return reject(models.ReasonPriceAboveEMA, "price %.5f not below EMA20 %.5f", price, ema)
		}
		if rsi <= s.cfg.RSIOversold {
			return reject(models.ReasonRSIOversold, "RSI %.1f not above %.0f", rsi, s.cfg.RSIOversold)
		}
		d.Safe, d.Action = true, models.Sell
		d.Reasoning = fmt.Sprintf("SNIPER APPROVED: SELL with price %.5f below EMA20 %.5f, RSI %.1f", price, ema, rsi)
		return d
	}
	return reject(models.ReasonInvalidAction, "direction %q is not tradable", cons.Direction)
}
