package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"SignalDesk/internal/agent"
	"SignalDesk/internal/bus"
	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
)

// ErrNoVoters is returned by Decide when the orchestrator has nobody to ask.
var ErrNoVoters = errors.New("orchestrator: no voters configured")

// Voter is one agent taking part in consensus. Policy and Scale mirror the
// agent's own so that a failed request can be turned into its fallback vote.
type Voter struct {
	Name    string
	Channel string
	Weight  float64
	Veto    bool
	Policy  agent.ErrorPolicy
	Scale   agent.Scale
}

// VoterFor describes a as a voter listening on channel.
func VoterFor(a agent.Agent, channel string, weight float64, veto bool) Voter {
	return Voter{
		Name:    a.Name(),
		Channel: channel,
		Weight:  weight,
		Veto:    veto,
		Policy:  a.Policy(),
		Scale:   a.Scale(),
	}
}

type OrchestratorConfig struct {
	ShadowMode      bool
	ShadowThreshold int
	Floor           int
	VoteTimeout     time.Duration
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		ShadowMode:      true,
		ShadowThreshold: 85,
		Floor:           60,
		VoteTimeout:     5 * time.Second,
	}
}

// OrchestratorStats are running diagnostics. They never affect decisions.
type OrchestratorStats struct {
	Total         int64   `json:"total"`
	Approved      int64   `json:"approved"`
	Rejected      int64   `json:"rejected"`
	Emitted       int64   `json:"emitted"`
	Ghosts        int64   `json:"ghosts"`
	ApprovalRate  float64 `json:"approval_rate"`
	AvgConfidence float64 `json:"avg_confidence"`
	ShadowMode    bool    `json:"shadow_mode"`
	Threshold     int     `json:"threshold"`
}

// Orchestrator fuses agent votes gathered over the bus into one decision.
type Orchestrator struct {
	bus     *bus.Bus
	voters  []Voter
	cfg     OrchestratorConfig
	metrics repository.Metrics
	l       *applogger.Logger
	now     func() time.Time

	mu      sync.Mutex
	shadow  bool
	stats   OrchestratorStats
	confSum int64
}

func NewOrchestrator(b *bus.Bus, voters []Voter, cfg OrchestratorConfig, metrics repository.Metrics, l *applogger.Logger) *Orchestrator {
	def := DefaultOrchestratorConfig()
	if cfg.ShadowThreshold <= 0 {
		cfg.ShadowThreshold = def.ShadowThreshold
	}
	if cfg.Floor <= 0 {
		cfg.Floor = def.Floor
	}
	if cfg.VoteTimeout <= 0 {
		cfg.VoteTimeout = def.VoteTimeout
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Orchestrator{
		bus:     b,
		voters:  voters,
		cfg:     cfg,
		metrics: metrics,
		l:       l,
		now:     time.Now,
		shadow:  cfg.ShadowMode,
	}
}

func (o *Orchestrator) EnableShadowMode() {
	o.mu.Lock()
	o.shadow = true
	o.mu.Unlock()
	o.l.Info("shadow mode enabled", applogger.Int("threshold", o.cfg.ShadowThreshold))
}

func (o *Orchestrator) DisableShadowMode() {
	o.mu.Lock()
	o.shadow = false
	o.mu.Unlock()
	o.l.Warn("shadow mode disabled", applogger.Int("threshold", o.disabledThreshold()))
}

// ShadowMode reports whether the shadow gate is on.
func (o *Orchestrator) ShadowMode() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shadow
}

// Threshold is the confidence an approval needs to be emitted right now.
func (o *Orchestrator) Threshold() int {
	if o.ShadowMode() {
		return o.cfg.ShadowThreshold
	}
	return o.disabledThreshold()
}

// disabledThreshold never exceeds the shadow threshold.
func (o *Orchestrator) disabledThreshold() int {
	if o.cfg.Floor > o.cfg.ShadowThreshold {
		return o.cfg.ShadowThreshold
	}
	return o.cfg.Floor
}

// Decide asks every voter concurrently and fuses the votes. Transport
// failures never surface: a voter that cannot be reached votes its fallback.
func (o *Orchestrator) Decide(ctx context.Context, snap models.MarketSnapshot) (models.ConsensusResult, error) {
	if len(o.voters) == 0 {
		return models.ConsensusResult{}, ErrNoVoters
	}
	o.bus.Publish(ctx, bus.ChannelConsensusRequest, snap)

	votes := o.collect(ctx, snap)
	res := o.fuse(snap, votes)
	o.record(res)

	ch := bus.ChannelSignalRejected
	if res.ShouldEmit {
		ch = bus.ChannelSignalApproved
	}
	o.bus.Publish(ctx, ch, res)

	o.l.Info("consensus decided",
		applogger.String("symbol", res.Symbol),
		applogger.String("decision", string(res.Decision)),
		applogger.Int("confidence", res.Confidence),
		applogger.Int("threshold", res.Threshold),
		applogger.Bool("emit", res.ShouldEmit),
		applogger.Bool("ghost", res.Ghost),
	)
	return res, nil
}

func (o *Orchestrator) collect(ctx context.Context, snap models.MarketSnapshot) []models.AgentVote {
	votes := make([]models.AgentVote, len(o.voters))
	var wg sync.WaitGroup
	for i, v := range o.voters {
		wg.Add(1)
		go func(i int, v Voter) {
			defer wg.Done()
			start := o.now()
			vote, err := bus.RequestAs[models.AgentVote](ctx, o.bus, v.Channel, snap, o.cfg.VoteTimeout)
			if err != nil {
				o.l.Warn("vote request failed, using fallback",
					applogger.String("agent", v.Name),
					applogger.Error(err),
				)
				if o.metrics != nil {
					o.metrics.RecordError("vote_request")
				}
				neutral := 0
				if v.Policy == agent.PolicyApproveNeutral {
					neutral = v.Scale.Neutral()
				}
				vote = agent.Fallback(v.Name, v.Policy, neutral, err)
				vote.ProcessingTime = o.now().Sub(start)
			}
			vote.Agent = v.Name
			votes[i] = vote
		}(i, v)
	}
	wg.Wait()
	return votes
}

func (o *Orchestrator) fuse(snap models.MarketSnapshot, votes []models.AgentVote) models.ConsensusResult {
	var (
		weighted, total float64
		vetoed          []string
		parts           []string
	)
	for i, v := range o.voters {
		vote := votes[i]
		weighted += v.Weight * v.Scale.Normalize(vote.Score)
		total += v.Weight
		if v.Veto && !vote.Approved() {
			vetoed = append(vetoed, fmt.Sprintf("%s(%s)", v.Name, vote.Reason))
		}
		parts = append(parts, fmt.Sprintf("%s %s %d", v.Name, vote.Decision, vote.Score))
	}
	confidence := 0
	if total > 0 {
		confidence = int(math.Round(weighted / total))
	}

	shadow := o.ShadowMode()
	threshold := o.Threshold()
	res := models.ConsensusResult{
		Symbol:     snap.Symbol,
		Direction:  snap.Direction,
		Confidence: confidence,
		Threshold:  threshold,
		Votes:      votes,
		ShadowMode: shadow,
		Action:     models.Neutral,
		DecidedAt:  o.now(),
	}

	summary := strings.Join(parts, ", ")
	switch {
	case len(vetoed) > 0:
		res.Decision = models.Reject
		res.Reason = models.ReasonAgentVeto
		res.Reasoning = fmt.Sprintf("rejected by %s; %s", strings.Join(vetoed, ", "), summary)
	case confidence < threshold:
		res.Decision = models.Approve
		res.Ghost = true
		res.Reason = models.ReasonBelowShadow
		if !shadow {
			res.Reason = models.ReasonScoreBelowMin
		}
		res.Reasoning = fmt.Sprintf("approved but confidence %d below threshold %d; %s", confidence, threshold, summary)
	default:
		res.Decision = models.Approve
		res.ShouldEmit = true
		res.Action = models.ActionFor(snap.Direction)
		res.Reasoning = fmt.Sprintf("unanimous approval at confidence %d; %s", confidence, summary)
	}
	return res
}

func (o *Orchestrator) record(res models.ConsensusResult) {
	o.mu.Lock()
	o.stats.Total++
	if res.Decision == models.Approve {
		o.stats.Approved++
	} else {
		o.stats.Rejected++
	}
	if res.ShouldEmit {
		o.stats.Emitted++
	}
	if res.Ghost {
		o.stats.Ghosts++
	}
	o.confSum += int64(res.Confidence)
	o.mu.Unlock()

	if o.metrics != nil {
		outcome := "rejected"
		switch {
		case res.ShouldEmit:
			outcome = "emitted"
		case res.Ghost:
			outcome = "ghost"
		}
		o.metrics.RecordDecision(outcome, res.Confidence)
	}
}

func (o *Orchestrator) Stats() OrchestratorStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.stats
	if s.Total > 0 {
		s.ApprovalRate = float64(s.Approved) / float64(s.Total)
		s.AvgConfidence = float64(o.confSum) / float64(s.Total)
	}
	s.ShadowMode = o.shadow
	if o.shadow {
		s.Threshold = o.cfg.ShadowThreshold
	} else {
		s.Threshold = o.disabledThreshold()
	}
	return s
}
