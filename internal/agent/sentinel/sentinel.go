// Package sentinel implements the news and calendar agent. It fails open.
package sentinel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"SignalDesk/internal/agent"
	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/indicators"
	"SignalDesk/pkg/util"
)

const Name = "sentinel"

// VetoScore is the score attached to a pre-emptive calendar veto.
const VetoScore = -50

var errNoState = errors.New("sentinel: news cache or calendar not configured")

var (
	criticalKeywords = normalizeAll([]string{
		"NFP", "NON-FARM", "PAYROLL", "FOMC", "FED RATE", "INTEREST RATE",
		"ECB", "CENTRAL BANK", "GDP", "INFLATION", "CPI", "UNEMPLOYMENT",
		"JOBS REPORT", "GEOPOLITICAL", "WAR", "CRISIS",
	})
	bullishKeywords = normalizeAll([]string{"RISE", "RISES", "UP", "GAIN", "GAINS", "RALLY", "SURGE"})
	bearishKeywords = normalizeAll([]string{"FALL", "FALLS", "DOWN", "DROP", "DROPS", "SLUMP", "PLUNGE"})
)

type Config struct {
	VetoWindow       time.Duration
	NewsScanSize     int
	VolatilityWindow int
	RejectBelow      int
	CriticalPenalty  int
	KeywordStep      int
}

func DefaultConfig() Config {
	return Config{
		VetoWindow:       2 * time.Hour,
		NewsScanSize:     10,
		VolatilityWindow: 20,
		RejectBelow:      -30,
		CriticalPenalty:  30,
		KeywordStep:      5,
	}
}

type Option func(*Agent)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// Agent scores news sentiment and price volatility and vetoes ahead of
// high-impact calendar events.
type Agent struct {
	cfg  Config
	news *NewsCache
	cal  *Calendar
	now  func() time.Time
}

func New(cfg Config, news *NewsCache, cal *Calendar, opts ...Option) *Agent {
	def := DefaultConfig()
	if cfg.VetoWindow <= 0 {
		cfg.VetoWindow = def.VetoWindow
	}
	if cfg.NewsScanSize <= 0 {
		cfg.NewsScanSize = def.NewsScanSize
	}
	if cfg.VolatilityWindow <= 0 {
		cfg.VolatilityWindow = def.VolatilityWindow
	}
	if cfg.RejectBelow == 0 {
		cfg.RejectBelow = def.RejectBelow
	}
	if cfg.CriticalPenalty <= 0 {
		cfg.CriticalPenalty = def.CriticalPenalty
	}
	if cfg.KeywordStep <= 0 {
		cfg.KeywordStep = def.KeywordStep
	}
	a := &Agent{cfg: cfg, news: news, cal: cal, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Name() string              { return Name }
func (a *Agent) Policy() agent.ErrorPolicy { return agent.PolicyApproveNeutral }
func (a *Agent) Scale() agent.Scale        { return agent.Scale{Min: -50, Max: 50} }

// InjectNews adds a news item to the cache.
func (a *Agent) InjectNews(item models.NewsItem) {
	if a.news != nil {
		a.news.Add(item)
	}
}

// InjectEvent adds an economic event to the calendar.
func (a *Agent) InjectEvent(ev models.EconomicEvent) {
	if a.cal != nil {
		a.cal.Add(ev)
	}
}

func (a *Agent) Analyze(_ context.Context, snap models.MarketSnapshot) (models.AgentVote, error) {
	if a.news == nil || a.cal == nil {
		return models.AgentVote{}, errNoState
	}
	now := a.now()

	if ev, ok := a.cal.NextHighImpact(now, a.cfg.VetoWindow); ok {
		minutes := util.MinutesUntil(now, ev.Timestamp)
		return models.AgentVote{
			Agent:     Name,
			Decision:  models.Reject,
			Score:     VetoScore,
			Reason:    models.ReasonHighImpactPending,
			Reasoning: fmt.Sprintf("high impact event %q in %d minutes", ev.Title, minutes),
			Details: map[string]interface{}{
				"news_event":    ev.Title,
				"minutes_until": minutes,
			},
		}, nil
	}

	for _, p := range snap.Prices {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return models.AgentVote{}, fmt.Errorf("sentinel: non-finite price %v", p)
		}
	}

	items := a.news.Recent(a.cfg.NewsScanSize)
	newsScore, critical, headline := a.scoreNews(items)
	volScore, relVol := a.scoreVolatility(snap.Prices)
	score := int(math.Round(0.6*float64(newsScore) + 0.4*float64(volScore)))

	v := models.AgentVote{
		Agent:     Name,
		Decision:  models.Approve,
		Score:     score,
		Reasoning: fmt.Sprintf("news %d over %d items, volatility %d, score %d", newsScore, len(items), volScore, score),
		Details: map[string]interface{}{
			"news_score":       newsScore,
			"items_scanned":    len(items),
			"volatility_score": volScore,
			"relative_vol":     relVol,
			"critical_news":    critical,
		},
	}
	switch {
	case critical:
		v.Decision = models.Reject
		v.Reason = models.ReasonCriticalNews
		v.Details["critical_headline"] = headline
		v.Reasoning = fmt.Sprintf("critical news %q, %s", headline, v.Reasoning)
	case score < a.cfg.RejectBelow:
		v.Decision = models.Reject
		v.Reason = models.ReasonNegativeSentiment
	}
	return v, nil
}

// scoreNews averages keyword hits over items and clamps to [-50, 50].
func (a *Agent) scoreNews(items []models.NewsItem) (score int, critical bool, headline string) {
	if len(items) == 0 {
		return 0, false, ""
	}
	sum := 0
	for _, it := range items {
		title := normalize(it.Title)
		if containsAny(title, criticalKeywords) {
			sum -= a.cfg.CriticalPenalty
			if !critical {
				critical, headline = true, it.Title
			}
			continue
		}
		if containsAny(title, bullishKeywords) {
			sum += a.cfg.KeywordStep
		}
		if containsAny(title, bearishKeywords) {
			sum -= a.cfg.KeywordStep
		}
	}
	avg := float64(sum) / float64(len(items))
	avg = math.Max(-50, math.Min(50, avg))
	return int(math.Round(avg)), critical, headline
}

// scoreVolatility grades the relative standard deviation of the trailing window.
func (a *Agent) scoreVolatility(prices []float64) (int, float64) {
	if len(prices) < a.cfg.VolatilityWindow {
		return 0, 0
	}
	window := indicators.Last(prices, a.cfg.VolatilityWindow)
	mean := indicators.Mean(window)
	if mean <= 0 {
		return 0, 0
	}
	rel := indicators.StdDev(window) / mean
	switch {
	case rel < 0.001:
		return 30, rel
	case rel < 0.002:
		return 10, rel
	case rel < 0.005:
		return -10, rel
	default:
		return -30, rel
	}
}

// normalize upper-cases s, turns punctuation into spaces and pads it so
// keywords match on word boundaries.
func normalize(s string) string {
	fields := strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(fields, " ") + " "
}

func normalizeAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = normalize(w)
	}
	return out
}

func containsAny(title string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(title, k) {
			return true
		}
	}
	return false
}

var _ agent.Agent = (*Agent)(nil)
