package sentinel

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalDesk/internal/agent"
	"SignalDesk/internal/domain/models"
)

var fixedNow = time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)

func newAgent() *Agent {
	return New(DefaultConfig(), NewNewsCache(), NewCalendar(), WithClock(func() time.Time { return fixedNow }))
}

func flatPrices(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1.1
	}
	return out
}

func TestHighImpactEventVetoes(t *testing.T) {
	a := newAgent()
	a.InjectEvent(models.EconomicEvent{Title: "US Non-Farm Payrolls", Timestamp: fixedNow.Add(90 * time.Minute), Impact: models.ImpactHigh})
	// bullish news must not matter once the veto fires
	a.InjectNews(models.NewsItem{Title: "Euro gains", Timestamp: fixedNow})

	v, err := a.Analyze(context.Background(), models.MarketSnapshot{Prices: flatPrices(30)})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if v.Decision != models.Reject || v.Score != VetoScore || v.Reason != models.ReasonHighImpactPending {
		t.Fatalf("vote = %+v, want veto", v)
	}
	if v.Details["minutes_until"].(int) != 90 {
		t.Fatalf("minutes_until = %v, want 90", v.Details["minutes_until"])
	}
}

func TestEventsOutsideWindowDoNotVeto(t *testing.T) {
	a := newAgent()
	a.InjectEvent(models.EconomicEvent{Title: "FOMC", Timestamp: fixedNow.Add(3 * time.Hour), Impact: models.ImpactHigh})
	a.InjectEvent(models.EconomicEvent{Title: "CPI", Timestamp: fixedNow.Add(-10 * time.Minute), Impact: models.ImpactHigh})
	a.InjectEvent(models.EconomicEvent{Title: "Retail sales", Timestamp: fixedNow.Add(30 * time.Minute), Impact: models.ImpactMedium})

	v, err := a.Analyze(context.Background(), models.MarketSnapshot{Prices: flatPrices(30)})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if v.Decision != models.Approve {
		t.Fatalf("vote = %+v, want APPROVE", v)
	}
	// flat prices: volatility +30, no news: 0.4*30 = 12
	if v.Score != 12 {
		t.Fatalf("score = %d, want 12", v.Score)
	}
}

func TestCriticalNewsRejects(t *testing.T) {
	a := newAgent()
	for i := 0; i < 9; i++ {
		a.InjectNews(models.NewsItem{Title: "Stocks rise on earnings", Timestamp: fixedNow})
	}
	a.InjectNews(models.NewsItem{Title: "ECB signals policy shift", Timestamp: fixedNow})

	v, err := a.Analyze(context.Background(), models.MarketSnapshot{Prices: flatPrices(30)})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if v.Decision != models.Reject || v.Reason != models.ReasonCriticalNews {
		t.Fatalf("vote = %+v, want REJECT CRITICAL_NEWS", v)
	}
	// (9*5 - 30) / 10 = 1.5 -> 2; 0.6*2 + 0.4*30 = 13.2 -> 13
	if v.Score != 13 {
		t.Fatalf("score = %d, want 13", v.Score)
	}
}

func TestKeywordsMatchWholeWords(t *testing.T) {
	a := newAgent()
	a.InjectNews(models.NewsItem{Title: "Supply warning for warehouses", Timestamp: fixedNow})
	v, _ := a.Analyze(context.Background(), models.MarketSnapshot{Prices: flatPrices(30)})
	if v.Details["critical_news"].(bool) {
		t.Fatalf("substring of WAR flagged as critical: %+v", v)
	}
}

func TestHighVolatilityRejects(t *testing.T) {
	a := newAgent()
	for i := 0; i < 10; i++ {
		a.InjectNews(models.NewsItem{Title: "Dollar falls", Timestamp: fixedNow})
	}
	prices := make([]float64, 20)
	for i := range prices {
		if i%2 == 0 {
			prices[i] = 1.0
		} else {
			prices[i] = 1.1
		}
	}
	v, err := a.Analyze(context.Background(), models.MarketSnapshot{Prices: prices})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	// news -5, volatility -30: 0.6*-5 + 0.4*-30 = -15, above reject line
	if v.Score != -15 || v.Decision != models.Approve {
		t.Fatalf("vote = %+v, want APPROVE -15", v)
	}
}

func TestMissingStateFailsOpen(t *testing.T) {
	a := New(DefaultConfig(), nil, nil)
	_, err := a.Analyze(context.Background(), models.MarketSnapshot{})
	if !errors.Is(err, errNoState) {
		t.Fatalf("err = %v", err)
	}
	v := agent.Evaluate(context.Background(), a, models.MarketSnapshot{})
	if v.Decision != models.Approve || v.Score != 0 {
		t.Fatalf("vote = %+v, want APPROVE 0", v)
	}
}

type stubNews struct {
	items []models.NewsItem
	err   error
}

func (s stubNews) FetchNews(context.Context) ([]models.NewsItem, error) { return s.items, s.err }

type stubCalendar struct{ events []models.EconomicEvent }

func (s stubCalendar) FetchEvents(context.Context) ([]models.EconomicEvent, error) {
	return s.events, nil
}

func TestRefresherKeepsCacheOnError(t *testing.T) {
	cache := NewNewsCache()
	cal := NewCalendar()
	ok := NewRefresher(stubNews{items: []models.NewsItem{{Title: "a"}, {Title: "b"}}},
		stubCalendar{events: []models.EconomicEvent{{Title: "GDP"}}}, cache, cal, 0, 0, nil)
	if err := ok.RefreshNews(context.Background()); err != nil {
		t.Fatalf("RefreshNews: %v", err)
	}
	if err := ok.RefreshCalendar(context.Background()); err != nil {
		t.Fatalf("RefreshCalendar: %v", err)
	}

	bad := NewRefresher(stubNews{err: errors.New("rate limited")}, nil, cache, cal, 0, 0, nil)
	if err := bad.RefreshNews(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if got := len(cache.Recent(0)); got != 2 {
		t.Fatalf("cache size after failed refresh = %d, want 2", got)
	}
	if cal.Len() != 1 {
		t.Fatalf("calendar size = %d, want 1", cal.Len())
	}
}
