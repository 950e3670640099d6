package technical

import (
	"context"
	"errors"
	"testing"

	"SignalDesk/internal/agent"
	"SignalDesk/internal/domain/models"
)

func flatSnapshot(n int, price float64) models.MarketSnapshot {
	prices := make([]float64, n)
	vols := make([]float64, n)
	for i := range prices {
		prices[i] = price
		vols[i] = 1000
	}
	return models.MarketSnapshot{
		Symbol:        "EURUSD=X",
		CurrentPrice:  price,
		Prices:        prices,
		Volumes:       vols,
		CurrentCandle: models.Candle{Open: price, High: price + 0.0010, Low: price, Close: price + 0.0010},
		Direction:     models.Long,
	}
}

func TestFlatSeriesApproves(t *testing.T) {
	a := New(DefaultConfig())
	v, err := a.Analyze(context.Background(), flatSnapshot(50, 1.1000))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if v.Decision != models.Approve {
		t.Fatalf("decision = %s (%s), want APPROVE", v.Decision, v.Reasoning)
	}
	if v.Score < 61 || v.Score > 70 {
		t.Fatalf("score = %d, want 61..70", v.Score)
	}
	if v.Reason == models.ReasonWickFakeout {
		t.Fatalf("flat zero-wick candle flagged as fakeout")
	}
	if rsi := v.Details["rsi"].(float64); rsi != 50 {
		t.Fatalf("rsi = %v, want 50", rsi)
	}
}

func TestWickFakeoutShortCircuits(t *testing.T) {
	a := New(DefaultConfig())
	snap := flatSnapshot(50, 1.0500)
	snap.CurrentCandle = models.Candle{Open: 1.0500, High: 1.0550, Low: 1.0495, Close: 1.0505}

	v, err := a.Analyze(context.Background(), snap)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if v.Decision != models.Reject || v.Reason != models.ReasonWickFakeout {
		t.Fatalf("vote = %+v, want REJECT WICK_FAKEOUT", v)
	}
	if r := v.Details["wick_ratio"].(float64); r < 9.99 || r > 10.01 {
		t.Fatalf("wick ratio = %v, want 10", r)
	}
}

func TestWickLongerThanBodyRejects(t *testing.T) {
	a := New(DefaultConfig())
	snap := flatSnapshot(50, 1.0)
	// body 0.0010, wicks 0.0010 + 0.0010
	snap.CurrentCandle = models.Candle{Open: 1.0000, High: 1.0020, Low: 0.9990, Close: 1.0010}
	v, _ := a.Analyze(context.Background(), snap)
	if v.Reason != models.ReasonWickFakeout {
		t.Fatalf("wick twice the body should reject, got %+v", v)
	}
}

func TestShortHistoryDegrades(t *testing.T) {
	a := New(DefaultConfig())
	snap := flatSnapshot(5, 1.2)
	snap.Volumes = []float64{100}
	v, err := a.Analyze(context.Background(), snap)
	if err != nil {
		t.Fatalf("short history must not error: %v", err)
	}
	if v.Details["rsi"].(float64) != 50 {
		t.Fatalf("rsi = %v, want neutral 50", v.Details["rsi"])
	}
	if v.Details["volume_score"].(int) != 70 {
		t.Fatalf("volume score = %v, want 70", v.Details["volume_score"])
	}
}

func TestInvalidSnapshotFailsClosed(t *testing.T) {
	a := New(DefaultConfig())
	snap := flatSnapshot(30, 1.1)
	snap.CurrentCandle.High = snap.CurrentCandle.Low - 1

	_, err := a.Analyze(context.Background(), snap)
	if !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("err = %v, want ErrInvalidSnapshot", err)
	}
	v := agent.Evaluate(context.Background(), a, snap)
	if v.Decision != models.Reject || v.Reason != models.ReasonAnalysisError {
		t.Fatalf("evaluated vote = %+v, want REJECT ANALYSIS_ERROR", v)
	}
}

func TestScoreRSIBands(t *testing.T) {
	tests := []struct {
		rsi  float64
		dir  models.Direction
		want int
	}{
		{50, models.Long, 85},
		{75, models.Long, 65},
		{85, models.Long, 40},
		{25, models.Long, 75},
		{50, models.Short, 85},
		{25, models.Short, 65},
		{15, models.Short, 40},
		{75, models.Short, 75},
	}
	for _, tt := range tests {
		if got := scoreRSI(tt.rsi, tt.dir, 70); got != tt.want {
			t.Errorf("scoreRSI(%v, %s) = %d, want %d", tt.rsi, tt.dir, got, tt.want)
		}
	}
}

type mapStore map[string]float64

func (m mapStore) LoadWeights(context.Context) (map[string]float64, error) { return m, nil }

type failingStore struct{}

func (failingStore) LoadWeights(context.Context) (map[string]float64, error) {
	return nil, errors.New("relation dynamic_weights does not exist")
}

func TestLoadWeights(t *testing.T) {
	a := New(DefaultConfig(), WithWeightStore(mapStore{KeyWickRatioMax: 2.5, KeyRSIThreshold: 65, "unknown": 1}))
	w := a.LoadWeights(context.Background())
	if w.WickRatioMax != 2.5 || w.RSIThreshold != 65 || w.VolumeMultiplier != 1.2 {
		t.Fatalf("weights = %+v", w)
	}

	b := New(DefaultConfig(), WithWeightStore(failingStore{}))
	if got := b.LoadWeights(context.Background()); got != DefaultWeights() {
		t.Fatalf("failed load = %+v, want defaults", got)
	}
}
