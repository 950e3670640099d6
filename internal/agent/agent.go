// Package agent defines the contract shared by every opinion-generating agent
// and the plumbing that serves agents over the bus.
package agent

import (
	"context"
	"fmt"
	"math"
	"time"

	"SignalDesk/internal/bus"
	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
)

// ErrorPolicy declares what vote an agent yields when its analysis fails.
type ErrorPolicy string

const (
	// PolicyReject fails closed: the agent votes REJECT.
	PolicyReject ErrorPolicy = "reject"
	// PolicyApproveNeutral fails open: the agent votes APPROVE with a neutral score.
	PolicyApproveNeutral ErrorPolicy = "approve-neutral"
)

// Scale is the native score range of an agent.
type Scale struct {
	Min float64
	Max float64
}

// Normalize maps score onto 0..100.
func (s Scale) Normalize(score int) float64 {
	if s.Max <= s.Min {
		return 0
	}
	n := (float64(score) - s.Min) * 100 / (s.Max - s.Min)
	return math.Max(0, math.Min(100, n))
}

// Neutral is the midpoint score of the scale.
func (s Scale) Neutral() int { return int(math.Round((s.Min + s.Max) / 2)) }

// Agent produces one vote per market snapshot.
type Agent interface {
	Name() string
	Policy() ErrorPolicy
	Scale() Scale
	Analyze(ctx context.Context, snap models.MarketSnapshot) (models.AgentVote, error)
}

// Fallback builds the vote mandated by policy after err. Neutral is the
// agent's neutral score and applies to fail-open agents only.
func Fallback(name string, policy ErrorPolicy, neutral int, err error) models.AgentVote {
	details := map[string]interface{}{"error": fmt.Sprint(err)}
	if policy == PolicyApproveNeutral {
		return models.AgentVote{
			Agent:     name,
			Decision:  models.Approve,
			Score:     neutral,
			Reason:    models.ReasonSentinelDegraded,
			Reasoning: fmt.Sprintf("%s degraded, approving neutral: %v", name, err),
			Details:   details,
		}
	}
	return models.AgentVote{
		Agent:     name,
		Decision:  models.Reject,
		Score:     0,
		Reason:    models.ReasonAnalysisError,
		Reasoning: fmt.Sprintf("%s analysis failed: %v", name, err),
		Details:   details,
	}
}

// FallbackFor is Fallback for a concrete agent.
func FallbackFor(a Agent, err error) models.AgentVote {
	neutral := 0
	if a.Policy() == PolicyApproveNeutral {
		neutral = a.Scale().Neutral()
	}
	return Fallback(a.Name(), a.Policy(), neutral, err)
}

// Evaluate runs a.Analyze and converts errors and panics into the agent's
// declared fallback vote. The returned vote always carries the processing time.
func Evaluate(ctx context.Context, a Agent, snap models.MarketSnapshot) (vote models.AgentVote) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			vote = FallbackFor(a, fmt.Errorf("panic: %v", r))
		}
		vote.Agent = a.Name()
		vote.ProcessingTime = time.Since(start)
	}()

	v, err := a.Analyze(ctx, snap)
	if err != nil {
		return FallbackFor(a, err)
	}
	return v
}

// Serve answers vote requests for a on channel. Each request payload must be
// a models.MarketSnapshot; the reply is a models.AgentVote.
func Serve(b *bus.Bus, channel string, a Agent, metrics repository.Metrics, l *applogger.Logger) *bus.Subscription {
	return b.Subscribe(channel, func(ctx context.Context, msg bus.Message) {
		var vote models.AgentVote
		snap, ok := msg.Payload.(models.MarketSnapshot)
		if !ok {
			vote = FallbackFor(a, fmt.Errorf("unexpected payload %T", msg.Payload))
		} else {
			vote = Evaluate(ctx, a, snap)
		}
		if metrics != nil {
			metrics.RecordVote(a.Name(), string(vote.Decision))
		}
		if l != nil {
			l.Debug("agent vote",
				applogger.String("agent", a.Name()),
				applogger.String("decision", string(vote.Decision)),
				applogger.Int("score", vote.Score),
				applogger.String("reason", vote.Reason),
			)
		}
		b.Reply(ctx, msg, vote)
	})
}
