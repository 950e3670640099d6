package models

// Requests for the ingress and decision HTTP endpoints.

type StatusUpdateRequest struct {
	SignalID     string  `json:"signal_id" validate:"required"`
	Status       string  `json:"status" validate:"required,oneof=WAITING ACTIVE ENTRY_HIT TP1_HIT TP2_HIT SL_HIT EXPIRED"`
	CurrentPrice float64 `json:"current_price" validate:"gte=0"`
}

type CandleRequest struct {
	Open  float64 `json:"open" validate:"gte=0"`
	High  float64 `json:"high" validate:"gte=0"`
	Low   float64 `json:"low" validate:"gte=0"`
	Close float64 `json:"close" validate:"gte=0"`
}

type DecisionRequest struct {
	Symbol        string         `json:"symbol" validate:"required"`
	CurrentPrice  float64        `json:"currentPrice" validate:"gte=0"`
	Prices        []float64      `json:"prices" validate:"required,min=1"`
	Volume        []float64      `json:"volume"`
	Direction     string         `json:"direction" default:"LONG" validate:"oneof=LONG SHORT BUY SELL"`
	CurrentCandle *CandleRequest `json:"currentCandle"`
}

type ShadowModeRequest struct {
	Enabled bool `json:"enabled"`
}

// PipelineResult is the full outcome of one decision pass. IsGhostSignal
// marks an approval held back by the shadow threshold; an entry refused by
// the sniper is reported by SniperRejected instead.
type PipelineResult struct {
	Symbol           string          `json:"symbol"`
	ShouldEmitSignal bool            `json:"shouldEmitSignal"`
	IsGhostSignal    bool            `json:"isGhostSignal"`
	SniperRejected   bool            `json:"sniperRejected"`
	Action           Action          `json:"action"`
	Confidence       int             `json:"confidence"`
	Votes            []AgentVote     `json:"votes"`
	Reasoning        string          `json:"reasoning"`
	Consensus        ConsensusResult `json:"consensus"`
	Sniper           *SniperDecision `json:"sniper,omitempty"`
	Signal           *Signal         `json:"signal,omitempty"`
}

// Snapshot converts a decision request into a market snapshot.
// currentPrice defaults to the last price. A missing candle is synthesized
// from the last two prices with no wicks.
func (r *DecisionRequest) Snapshot() MarketSnapshot {
	n := len(r.Prices)
	price := r.CurrentPrice
	if price == 0 && n > 0 {
		price = r.Prices[n-1]
	}
	s := MarketSnapshot{
		Symbol:       r.Symbol,
		CurrentPrice: price,
		Prices:       append([]float64(nil), r.Prices...),
		Volumes:      append([]float64(nil), r.Volume...),
		Direction:    ParseDirection(r.Direction),
	}
	if r.CurrentCandle != nil {
		s.CurrentCandle = Candle{
			Symbol: r.Symbol,
			Open:   r.CurrentCandle.Open,
			High:   r.CurrentCandle.High,
			Low:    r.CurrentCandle.Low,
			Close:  r.CurrentCandle.Close,
		}
		return s
	}
	open := price
	if n >= 2 {
		open = r.Prices[n-2]
	}
	hi, lo := open, price
	if lo > hi {
		hi, lo = lo, hi
	}
	s.CurrentCandle = Candle{Symbol: r.Symbol, Open: open, High: hi, Low: lo, Close: price}
	return s
}
