package models

import "time"

// Decision is an agent or consensus verdict.
type Decision string

const (
	Approve Decision = "APPROVE"
	Reject  Decision = "REJECT"
)

// Action is the executable outcome of a pipeline run.
type Action string

const (
	Buy     Action = "BUY"
	Sell    Action = "SELL"
	Neutral Action = "NEUTRAL"
)

// ActionFor returns the trade action implied by a direction.
func ActionFor(d Direction) Action {
	if d == Short {
		return Sell
	}
	return Buy
}

// Machine-readable reason codes carried by gate rejections.
const (
	ReasonWickFakeout       = "WICK_FAKEOUT"
	ReasonAnalysisError     = "ANALYSIS_ERROR"
	ReasonHighImpactPending = "HIGH_IMPACT_NEWS_PENDING"
	ReasonCriticalNews      = "CRITICAL_NEWS"
	ReasonNegativeSentiment = "NEGATIVE_SENTIMENT"
	ReasonSentinelDegraded  = "SENTINEL_DEGRADED"
	ReasonScoreBelowMin     = "SCORE_BELOW_THRESHOLD"
	ReasonAgentVeto         = "AGENT_VETO"
	ReasonBelowShadow       = "BELOW_SHADOW_THRESHOLD"
	ReasonLowConfidence     = "LOW_CONFIDENCE"
	ReasonConsensusFailed   = "CONSENSUS_FAILED"
	ReasonInvalidAction     = "INVALID_ACTION"
	ReasonPriceBelowEMA     = "PRICE_BELOW_EMA"
	ReasonPriceAboveEMA     = "PRICE_ABOVE_EMA"
	ReasonRSIOverbought     = "RSI_OVERBOUGHT"
	ReasonRSIOversold       = "RSI_OVERSOLD"
)

// AgentVote is one agent's opinion on a snapshot. Score is in the agent's own scale.
type AgentVote struct {
	Agent          string                 `json:"agent"`
	Decision       Decision               `json:"decision"`
	Score          int                    `json:"score"`
	Reason         string                 `json:"reason,omitempty"`
	Reasoning      string                 `json:"reasoning"`
	Details        map[string]interface{} `json:"details,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time_ns"`
}

// Approved reports whether the vote is an approval.
func (v AgentVote) Approved() bool { return v.Decision == Approve }

// ConsensusResult is the orchestrator's fused decision.
type ConsensusResult struct {
	Symbol     string      `json:"symbol"`
	Direction  Direction   `json:"direction"`
	Decision   Decision    `json:"decision"`
	Confidence int         `json:"confidence"`
	Threshold  int         `json:"threshold"`
	Votes      []AgentVote `json:"votes"`
	Reason     string      `json:"reason,omitempty"`
	Reasoning  string      `json:"reasoning"`
	ShadowMode bool        `json:"shadow_mode"`
	ShouldEmit bool        `json:"should_emit"`
	Ghost      bool        `json:"ghost"`
	Action     Action      `json:"action"`
	DecidedAt  time.Time   `json:"decided_at"`
}

// SniperDecision is the stricter secondary gate outcome.
type SniperDecision struct {
	Safe       bool    `json:"safe"`
	Action     Action  `json:"action"`
	Reason     string  `json:"reason,omitempty"`
	Reasoning  string  `json:"reasoning"`
	EMA20      float64 `json:"ema20"`
	RSI        float64 `json:"rsi"`
	Confidence int     `json:"confidence"`
}
