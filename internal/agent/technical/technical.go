// Package technical implements the indicator-driven agent. It fails closed.
package technical

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"SignalDesk/internal/agent"
	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
	"SignalDesk/internal/indicators"
	applogger "SignalDesk/pkg/logger"
)

const Name = "technical"

// Keys understood in the dynamic weight store.
const (
	KeyRSIThreshold     = "rsi_threshold"
	KeyWickRatioMax     = "wick_ratio_max"
	KeyVolumeMultiplier = "volume_multiplier"
)

// ErrInvalidSnapshot marks input that cannot be analyzed at all.
var ErrInvalidSnapshot = errors.New("technical: invalid snapshot")

// Weights are the tunable thresholds that may be overridden at startup.
type Weights struct {
	RSIThreshold     float64 `json:"rsi_threshold"`
	WickRatioMax     float64 `json:"wick_ratio_max"`
	VolumeMultiplier float64 `json:"volume_multiplier"`
}

func DefaultWeights() Weights {
	return Weights{RSIThreshold: 70, WickRatioMax: 1.0, VolumeMultiplier: 1.2}
}

type Config struct {
	RSIPeriod        int
	FastEMA          int
	SlowEMA          int
	VolumeWindow     int
	ApproveThreshold int
	Weights          Weights
}

func DefaultConfig() Config {
	return Config{
		RSIPeriod:        14,
		FastEMA:          12,
		SlowEMA:          26,
		VolumeWindow:     20,
		ApproveThreshold: 60,
		Weights:          DefaultWeights(),
	}
}

type Option func(*Agent)

// WithWeightStore sets the store LoadWeights reads from.
func WithWeightStore(s repository.WeightStore) Option {
	return func(a *Agent) { a.store = s }
}

func WithLogger(l *applogger.Logger) Option {
	return func(a *Agent) { a.l = l }
}

// Agent scores RSI, EMA alignment and volume against the requested direction.
type Agent struct {
	cfg   Config
	store repository.WeightStore
	l     *applogger.Logger

	mu      sync.RWMutex
	weights Weights
}

func New(cfg Config, opts ...Option) *Agent {
	def := DefaultConfig()
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = def.RSIPeriod
	}
	if cfg.FastEMA <= 0 {
		cfg.FastEMA = def.FastEMA
	}
	if cfg.SlowEMA <= 0 {
		cfg.SlowEMA = def.SlowEMA
	}
	if cfg.VolumeWindow <= 0 {
		cfg.VolumeWindow = def.VolumeWindow
	}
	if cfg.ApproveThreshold <= 0 {
		cfg.ApproveThreshold = def.ApproveThreshold
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	a := &Agent{cfg: cfg, weights: cfg.Weights}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Name() string              { return Name }
func (a *Agent) Policy() agent.ErrorPolicy { return agent.PolicyReject }
func (a *Agent) Scale() agent.Scale        { return agent.Scale{Min: 0, Max: 100} }

// Weights returns the thresholds currently in effect.
func (a *Agent) Weights() Weights {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.weights
}

// LoadWeights overrides the configured thresholds with any positive values
// found in the store. A failed load keeps the current thresholds.
func (a *Agent) LoadWeights(ctx context.Context) Weights {
	if a.store == nil {
		return a.Weights()
	}
	m, err := a.store.LoadWeights(ctx)
	if err != nil {
		if a.l != nil {
			a.l.Warn("dynamic weights unavailable, using defaults", applogger.Error(err))
		}
		return a.Weights()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := m[KeyRSIThreshold]; ok && v > 0 && v < 100 {
		a.weights.RSIThreshold = v
	}
	if v, ok := m[KeyWickRatioMax]; ok && v > 0 {
		a.weights.WickRatioMax = v
	}
	if v, ok := m[KeyVolumeMultiplier]; ok && v > 0 {
		a.weights.VolumeMultiplier = v
	}
	if a.l != nil {
		a.l.Info("dynamic weights loaded",
			applogger.Float64(KeyRSIThreshold, a.weights.RSIThreshold),
			applogger.Float64(KeyWickRatioMax, a.weights.WickRatioMax),
			applogger.Float64(KeyVolumeMultiplier, a.weights.VolumeMultiplier),
		)
	}
	return a.weights
}

// Analyze runs the anti-fakeout gate and the composite score.
func (a *Agent) Analyze(_ context.Context, snap models.MarketSnapshot) (models.AgentVote, error) {
	if err := validate(snap); err != nil {
		return models.AgentVote{}, err
	}
	w := a.Weights()
	c := snap.CurrentCandle

	wick := indicators.WickRatio(c.Open, c.High, c.Low, c.Close)
	if wick >= w.WickRatioMax {
		return models.AgentVote{
			Agent:     Name,
			Decision:  models.Reject,
			Score:     0,
			Reason:    models.ReasonWickFakeout,
			Reasoning: fmt.Sprintf("wick ratio %.2f exceeds max %.2f", wick, w.WickRatioMax),
			Details: map[string]interface{}{
				"wick_ratio":     wick,
				"wick_ratio_max": w.WickRatioMax,
			},
		}, nil
	}

	rsi := indicators.RSI(snap.Prices, a.cfg.RSIPeriod)
	rsiScore := scoreRSI(rsi, snap.Direction, w.RSIThreshold)

	fast := indicators.EMA(snap.Prices, a.cfg.FastEMA)
	slow := indicators.EMA(snap.Prices, a.cfg.SlowEMA)
	emaScore, trend := scoreEMA(fast, slow)

	volRatio, volOK := indicators.VolumeRatio(snap.Volumes, a.cfg.VolumeWindow)
	volScore := scoreVolume(volRatio, volOK, w.VolumeMultiplier)

	score := int(math.Round(0.4*float64(rsiScore) + 0.3*float64(emaScore) + 0.3*float64(volScore)))

	v := models.AgentVote{
		Agent:    Name,
		Decision: models.Reject,
		Score:    score,
		Reasoning: fmt.Sprintf("RSI %.1f (%d), EMA %s (%d), volume x%.2f (%d), score %d",
			rsi, rsiScore, trend, emaScore, volRatio, volScore, score),
		Details: map[string]interface{}{
			"rsi":          rsi,
			"rsi_score":    rsiScore,
			"ema_fast":     fast,
			"ema_slow":     slow,
			"ema_trend":    trend,
			"ema_score":    emaScore,
			"volume_ratio": volRatio,
			"volume_score": volScore,
			"wick_ratio":   wick,
		},
	}
	if score >= a.cfg.ApproveThreshold {
		v.Decision = models.Approve
	} else {
		v.Reason = models.ReasonScoreBelowMin
	}
	return v, nil
}

// scoreRSI grades RSI against the direction. overbought is the upper band;
// the lower band mirrors it and the extreme bands sit 10 points beyond.
func scoreRSI(rsi float64, dir models.Direction, overbought float64) int {
	oversold := 100 - overbought
	if dir == models.Short {
		switch {
		case rsi >= oversold && rsi <= overbought:
			return 85
		case rsi >= oversold-10 && rsi < oversold:
			return 65
		case rsi < oversold-10:
			return 40
		default:
			return 75
		}
	}
	switch {
	case rsi >= oversold && rsi <= overbought:
		return 85
	case rsi > overbought && rsi <= overbought+10:
		return 65
	case rsi > overbought+10:
		return 40
	default:
		return 75
	}
}

func scoreEMA(fast, slow float64) (int, string) {
	if fast > slow {
		return 80, "BULLISH"
	}
	return 40, "BEARISH"
}

func scoreVolume(ratio float64, ok bool, multiplier float64) int {
	switch {
	case !ok:
		return 70
	case ratio >= multiplier:
		return 90
	case ratio >= 0.8:
		return 70
	default:
		return 50
	}
}

func validate(snap models.MarketSnapshot) error {
	for _, p := range snap.Prices {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return fmt.Errorf("%w: price %v", ErrInvalidSnapshot, p)
		}
	}
	c := snap.CurrentCandle
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: candle value %v", ErrInvalidSnapshot, v)
		}
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: candle high %v below low %v", ErrInvalidSnapshot, c.High, c.Low)
	}
	return nil
}

var _ agent.Agent = (*Agent)(nil)
